// Package cli implements the subtrack command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/subtrack/pkg/observability"
	"github.com/spf13/cobra"
)

var logger *slog.Logger

type startedAtKey struct{}

var rootCmd = &cobra.Command{
	Use:   "subtrack",
	Short: "subtrack - subscription tracker service",
	Long: `subtrack records the recurring subscriptions a user pays for and
schedules renewal reminders through an external workflow engine.

Run 'subtrack serve' to start the HTTP API.`,
	SilenceUsage:      true,
	PersistentPreRun:  beginCommand,
	PersistentPostRun: endCommand,
}

// beginCommand gives each invocation its own correlation id, which the
// logger attaches to every record written under the command's context.
func beginCommand(cmd *cobra.Command, _ []string) {
	ctx := observability.WithCorrelationID(cmd.Context(), "")
	ctx = context.WithValue(ctx, startedAtKey{}, time.Now())
	cmd.SetContext(ctx)
	Logger().DebugContext(ctx, "command start", "command", cmd.CommandPath())
}

func endCommand(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	started, ok := ctx.Value(startedAtKey{}).(time.Time)
	if !ok {
		return
	}
	Logger().DebugContext(ctx, "command end",
		"command", cmd.CommandPath(),
		observability.DurationKey, time.Since(started).Milliseconds(),
	)
}

// Execute runs the command line under ctx. Errors are printed before they
// are returned.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		return err
	}
	return nil
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// Logger returns the CLI logger.
func Logger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
