package subscriptions

import (
	"fmt"

	"github.com/felixgeelhaar/subtrack/adapter/cli"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/queries"
	"github.com/spf13/cobra"
)

var days int

var renewalsCmd = &cobra.Command{
	Use:   "renewals",
	Short: "Show active subscriptions renewing soon",
	Long: `Show the owner's active subscriptions whose next billing date falls
within the coming window, soonest first.

Examples:
  subtrack subscriptions renewals --user u1
  subtrack subscriptions renewals --user u1 --days 30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			return fmt.Errorf("application not initialized - database connection required")
		}
		if userID == "" {
			return errUserRequired
		}

		window := days
		if window == 0 {
			window = queries.DefaultRenewalDays
		}
		subs, err := app.UpcomingRenewalsHandler.Handle(cmd.Context(), queries.UpcomingRenewalsQuery{
			UserID: userID,
			Days:   window,
		})
		if err != nil {
			return fmt.Errorf("failed to load renewals: %w", err)
		}

		printSubscriptions(cmd.OutOrStdout(), fmt.Sprintf("Renewals in the next %d days", window), subs)
		return nil
	},
}

func init() {
	renewalsCmd.Flags().IntVarP(&days, "days", "d", queries.DefaultRenewalDays, "window size in days")
}
