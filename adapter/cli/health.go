package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/subtrack/pkg/observability"
	"github.com/spf13/cobra"
)

var errAppNotInitialized = errors.New("application not initialized - database connection required")

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity of the configured backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}

		health := app.Health.Check(cmd.Context())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "status: %s\n", health.Status)

		names := make([]string, 0, len(health.Checks))
		for name := range health.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			check := health.Checks[name]
			fmt.Fprintf(out, "  %-10s %s", name, check.Status)
			if check.Message != "" {
				fmt.Fprintf(out, " (%s)", check.Message)
			}
			fmt.Fprintln(out)
		}

		if health.Status == observability.HealthStatusUnhealthy {
			return errors.New("one or more critical checks failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
