package subscriptions

import (
	"fmt"

	"github.com/felixgeelhaar/subtrack/adapter/cli"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/queries"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions",
	Long: `List subscriptions. Without --user every stored subscription is shown.

Examples:
  subtrack subscriptions list
  subtrack subscriptions list --user u1`,
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			return fmt.Errorf("application not initialized - database connection required")
		}

		var (
			subs []queries.SubscriptionDTO
			err  error
		)
		if userID == "" {
			subs, err = app.ListAllSubscriptionsHandler.Handle(cmd.Context())
		} else {
			subs, err = app.ListUserSubscriptionsHandler.Handle(cmd.Context(), queries.ListUserSubscriptionsQuery{
				UserID:       userID,
				TargetUserID: userID,
			})
		}
		if err != nil {
			return fmt.Errorf("failed to list subscriptions: %w", err)
		}

		printSubscriptions(cmd.OutOrStdout(), "Subscriptions", subs)
		return nil
	},
}
