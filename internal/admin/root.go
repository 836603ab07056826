// Package admin implements the libadmin maintenance commands.
package admin

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"librarysystem/internal/app"
	"librarysystem/internal/config"
	"librarysystem/internal/journal"
	"librarysystem/internal/notify"
	"librarysystem/internal/storage"
)

// Options holds what the commands need to reach the backends
type Options struct {
	Config *config.Config
	Logger *zap.Logger

	OpenStore    func(ctx context.Context) (storage.Storage, error)
	OpenJournal  func() (journal.Journal, error)
	OpenNotifier func() (notify.Notifier, error)
	Now          func() time.Time
}

// NewOptions wires the commands to the backends described by cfg
func NewOptions(cfg *config.Config, logger *zap.Logger) *Options {
	return &Options{
		Config: cfg,
		Logger: logger,
		OpenStore: func(ctx context.Context) (storage.Storage, error) {
			return app.OpenStore(ctx, cfg, logger)
		},
		OpenJournal: func() (journal.Journal, error) {
			return app.OpenJournal(cfg, logger)
		},
		OpenNotifier: func() (notify.Notifier, error) {
			return app.OpenNotifier(cfg, logger)
		},
		Now: time.Now,
	}
}

// NewRootCommand creates the root command of libadmin
func NewRootCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "libadmin",
		Short:         "Library Management System administration",
		Long:          "Maintenance commands for the library: journal migrations, activity and overdue reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewActivityCommand(opts))
	cmd.AddCommand(NewOverdueCommand(opts))

	return cmd
}
