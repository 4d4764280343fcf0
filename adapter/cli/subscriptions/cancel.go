package subscriptions

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/subtrack/adapter/cli"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/commands"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/queries"
	"github.com/felixgeelhaar/subtrack/pkg/observability"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <subscription-id>",
	Short: "Cancel a subscription",
	Long: `Mark a subscription cancelled. The record is kept; cancelling twice
is harmless.

Examples:
  subtrack subscriptions cancel 6f1c...-... --user u1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			return fmt.Errorf("application not initialized - database connection required")
		}
		if userID == "" {
			return errUserRequired
		}

		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid subscription ID: %w", err)
		}

		s, err := app.CancelSubscriptionHandler.Handle(cmd.Context(), commands.CancelSubscriptionCommand{
			Actor: commands.Actor{
				UserID:        userID,
				CorrelationID: observability.CorrelationIDFromContext(cmd.Context()),
			},
			SubscriptionID: id,
		})
		if err != nil {
			return fmt.Errorf("failed to cancel subscription: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Subscription cancelled!")
		fmt.Fprintln(out, strings.Repeat("-", 40))
		printSubscription(out, queries.ToDTO(s))
		return nil
	},
}
