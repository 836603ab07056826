package admin

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"librarysystem/internal/journal"
	"librarysystem/internal/library"
	"librarysystem/internal/notify"
)

// NewOverdueCommand creates the overdue command. With --notify it also sends the digest to Telegram.
func NewOverdueCommand(opts *Options) *cobra.Command {
	var send bool

	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Print the overdue digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var notifier notify.Notifier
			if send {
				if !opts.Config.NotifierEnabled() {
					return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required for --notify")
				}
				n, err := opts.OpenNotifier()
				if err != nil {
					return err
				}
				notifier = n
			}

			db, err := opts.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := library.NewService(db, journal.NopJournal{}, opts.Logger, library.WithClock(opts.Now))
			overdue, err := svc.OverdueBooks(ctx)
			if err != nil {
				return fmt.Errorf("failed to list overdue books: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), notify.FormatDigest(overdue, opts.Now()))

			if notifier == nil {
				return nil
			}
			if err := notifier.NotifyOverdue(ctx, overdue); err != nil {
				return err
			}
			opts.Logger.Info("Overdue digest sent", zap.Int("count", len(overdue)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&send, "notify", false, "also send the digest to the configured Telegram chat")

	return cmd
}
