// Package migrations holds the goose migrations of the ClickHouse activity journal.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"

	"github.com/pressly/goose/v3"
)

// FS contains the SQL migration files
//
//go:embed *.sql
var FS embed.FS

// Commands lists what Run accepts
var Commands = []string{"up", "down", "status", "version"}

// Run executes a goose command against the journal database
func Run(ctx context.Context, db *sql.DB, command string, out io.Writer) error {
	goose.SetBaseFS(FS)

	// Set goose dialect to clickhouse
	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	switch command {
	case "up":
		if err := goose.UpContext(ctx, db, "."); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		fmt.Fprintln(out, "Migrations completed successfully")
	case "down":
		if err := goose.DownContext(ctx, db, "."); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		fmt.Fprintln(out, "Rollback completed successfully")
	case "status":
		if err := goose.StatusContext(ctx, db, "."); err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
	case "version":
		version, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		fmt.Fprintf(out, "Current migration version: %d\n", version)
	default:
		return fmt.Errorf("unknown command: %s. Available commands: up, down, status, version", command)
	}
	return nil
}
