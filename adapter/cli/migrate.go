package cli

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	Long: `Apply pending schema migrations for the configured database.

An empty DATABASE_URL migrates the SQLite file at SQLITE_PATH.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errors.New("configuration not loaded")
		}

		conn, err := database.Open(cmd.Context(), database.Config{
			URL:        cfg.DatabaseURL,
			SQLitePath: cfg.SQLitePath,
		})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer conn.Close()

		out := cmd.OutOrStdout()
		switch conn.Driver {
		case database.DriverSQLite:
			if err := migrations.RunSQLiteMigrations(cmd.Context(), conn.DB); err != nil {
				return fmt.Errorf("failed to migrate SQLite database: %w", err)
			}
			fmt.Fprintln(out, "SQLite schema is up to date")
		case database.DriverPostgres:
			version, err := migrations.RunPostgresMigrations(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to migrate PostgreSQL database: %w", err)
			}
			fmt.Fprintf(out, "PostgreSQL schema at version %d\n", version)
		default:
			return fmt.Errorf("unsupported driver: %s", conn.Driver)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
