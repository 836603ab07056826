// Package notify delivers overdue digests to library staff.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"librarysystem/internal/models"
)

// Notifier sends the overdue digest somewhere staff will see it
type Notifier interface {
	NotifyOverdue(ctx context.Context, entries []models.OverdueEntry) error
}

// MaxMessageLength is the Telegram limit for one text message. Lengths are counted in bytes,
// which is never less than the characters Telegram counts.
const MaxMessageLength = 4096

// Nop is used when no notification channel is configured
type Nop struct{}

func (Nop) NotifyOverdue(ctx context.Context, entries []models.OverdueEntry) error { return nil }

// TelegramNotifier posts the digest to one Telegram chat
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewTelegramNotifier creates a notifier talking to the public Telegram Bot API
func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	return NewTelegramNotifierWithEndpoint(token, tgbotapi.APIEndpoint, chatID, logger)
}

// NewTelegramNotifierWithEndpoint is NewTelegramNotifier against a custom API endpoint.
// endpoint is a format string taking the token and the method, like tgbotapi.APIEndpoint.
func NewTelegramNotifierWithEndpoint(token, endpoint string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Telegram notifier created", zap.String("bot_username", api.Self.UserName), zap.Int64("chat_id", chatID))

	return &TelegramNotifier{
		api:    api,
		chatID: chatID,
		logger: logger,
	}, nil
}

// NotifyOverdue sends the overdue digest, split over as many messages as the length limit needs.
// Nothing is sent for an empty list. Sending stops at the first failed message.
func (n *TelegramNotifier) NotifyOverdue(ctx context.Context, entries []models.OverdueEntry) error {
	if len(entries) == 0 {
		return nil
	}

	parts := SplitDigest(entries, time.Now(), MaxMessageLength)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.api.Send(tgbotapi.NewMessage(n.chatID, part)); err != nil {
			n.logger.Error("Failed to send overdue digest",
				zap.Error(err),
				zap.Int64("chat_id", n.chatID),
				zap.Int("part", i+1),
				zap.Int("parts", len(parts)))
			return fmt.Errorf("failed to send overdue digest part %d of %d: %w", i+1, len(parts), err)
		}
	}

	n.logger.Info("Overdue digest sent", zap.Int("count", len(entries)), zap.Int("messages", len(parts)))
	return nil
}

// FormatDigest renders the overdue list as plain text
func FormatDigest(entries []models.OverdueEntry, now time.Time) string {
	var text strings.Builder
	text.WriteString(digestHeader(entries))
	for i, e := range entries {
		text.WriteString(formatEntry(i, e, now))
	}
	return text.String()
}

// SplitDigest renders the digest as messages of at most limit bytes. Entries are never split
// across messages; an entry that alone exceeds the limit is cut short.
func SplitDigest(entries []models.OverdueEntry, now time.Time, limit int) []string {
	var (
		parts   []string
		current strings.Builder
	)
	current.WriteString(truncate(digestHeader(entries), limit))

	for i, e := range entries {
		entry := formatEntry(i, e, now)
		if current.Len()+len(entry) <= limit {
			current.WriteString(entry)
			continue
		}

		parts = append(parts, current.String())
		current.Reset()
		current.WriteString(truncate(strings.TrimPrefix(entry, "\n"), limit))
	}
	return append(parts, current.String())
}

func digestHeader(entries []models.OverdueEntry) string {
	return fmt.Sprintf("Overdue books: %d\n", len(entries))
}

func formatEntry(i int, e models.OverdueEntry, now time.Time) string {
	days := int(now.Sub(e.DueDate).Hours() / 24)
	return fmt.Sprintf("\n%d. %s\n   %s <%s>\n   due %s (%d days overdue)\n",
		i+1,
		orUnknown(e.BookTitle),
		orUnknown(e.UserName),
		e.UserEmail,
		e.DueDate.Format("2006-01-02"),
		days)
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 sequence
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
