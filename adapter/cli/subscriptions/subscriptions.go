// Package subscriptions holds the operator commands over stored subscriptions.
package subscriptions

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/queries"
	"github.com/spf13/cobra"
)

var errUserRequired = errors.New("--user is required")

// userID is the owner the commands act as.
var userID string

// Cmd is the subscriptions command group
var Cmd = &cobra.Command{
	Use:     "subscriptions",
	Short:   "Inspect and manage subscriptions",
	Long:    `List subscriptions, show upcoming renewals, and cancel subscriptions on behalf of an owner.`,
	Aliases: []string{"subs"},
}

func init() {
	Cmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "owner to act as")
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(renewalsCmd)
	Cmd.AddCommand(cancelCmd)
}

func printSubscriptions(out io.Writer, title string, subs []queries.SubscriptionDTO) {
	if len(subs) == 0 {
		fmt.Fprintln(out, "No subscriptions found.")
		return
	}

	fmt.Fprintf(out, "%s (%d):\n", title, len(subs))
	fmt.Fprintln(out, strings.Repeat("-", 60))
	for _, s := range subs {
		printSubscription(out, s)
		fmt.Fprintln(out)
	}
}

func printSubscription(out io.Writer, s queries.SubscriptionDTO) {
	name := s.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(out, "%s %s\n", statusIcon(s.Status), name)
	fmt.Fprintf(out, "   ID: %s\n", s.ID)
	fmt.Fprintf(out, "   Owner: %s\n", s.UserID)
	if s.Plan != "" {
		fmt.Fprintf(out, "   Plan: %s\n", s.Plan)
	}
	fmt.Fprintf(out, "   Price: %.2f %s / %s\n", s.Price, s.Currency, s.BillingCycle)
	fmt.Fprintf(out, "   Next billing: %s\n", s.NextBillingDate.Format("2006-01-02"))
}

func statusIcon(status string) string {
	switch status {
	case "cancelled":
		return "[-]"
	case "expired":
		return "[x]"
	default:
		return "[ ]"
	}
}
