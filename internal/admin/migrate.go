package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"librarysystem/internal/journal/ch"
	"librarysystem/migrations"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Apply or inspect the ClickHouse journal migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrations.Commands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Config
			if !cfg.JournalEnabled() {
				return fmt.Errorf("CLICKHOUSE_HOST is required for migrations")
			}

			// Default to "up"
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}

			db := ch.OpenSQL(ch.NewOptions(
				cfg.ClickHouseHost,
				cfg.ClickHousePort,
				cfg.ClickHouseDatabase,
				cfg.ClickHouseUser,
				cfg.ClickHousePassword,
				cfg.ClickHouseUseTLS,
			))
			defer db.Close()

			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}

			opts.Logger.Info("Running migrations")
			return migrations.Run(cmd.Context(), db, command, cmd.OutOrStdout())
		},
	}
}
