package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"librarysystem/internal/models"
)

const testToken = "123:abc"

// fakeTelegram serves the two Bot API methods the notifier uses
type fakeTelegram struct {
	mu       sync.Mutex
	sent     []map[string]string
	failSend bool
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/bot" + testToken + "/getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Library","username":"library_bot"}}`)
	case "/bot" + testToken + "/sendMessage":
		if f.failSend {
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.sent = append(f.sent, map[string]string{
			"chat_id": r.PostForm.Get("chat_id"),
			"text":    r.PostForm.Get("text"),
		})
		f.mu.Unlock()
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeTelegram) messages() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.sent...)
}

func newTestNotifier(t *testing.T, fake *fakeTelegram) *TelegramNotifier {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	n, err := NewTelegramNotifierWithEndpoint(testToken, server.URL+"/bot%s/%s", 42, zap.NewNop())
	require.NoError(t, err)
	return n
}

func sampleEntries() []models.OverdueEntry {
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []models.OverdueEntry{
		{
			Borrowing: models.Borrowing{ID: "l1", DueDate: due},
			BookTitle: "Dune",
			UserName:  "Alice",
			UserEmail: "alice@example.com",
		},
	}
}

func TestTelegramNotifier_SendsDigest(t *testing.T) {
	fake := &fakeTelegram{}
	n := newTestNotifier(t, fake)

	err := n.NotifyOverdue(context.Background(), sampleEntries())
	require.NoError(t, err)

	sent := fake.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0]["chat_id"])
	assert.Contains(t, sent[0]["text"], "Overdue books: 1")
	assert.Contains(t, sent[0]["text"], "Dune")
	assert.Contains(t, sent[0]["text"], "alice@example.com")
}

func TestTelegramNotifier_EmptyListSendsNothing(t *testing.T) {
	fake := &fakeTelegram{}
	n := newTestNotifier(t, fake)

	require.NoError(t, n.NotifyOverdue(context.Background(), nil))
	assert.Empty(t, fake.messages())
}

func TestTelegramNotifier_SendFailure(t *testing.T) {
	fake := &fakeTelegram{failSend: true}
	n := newTestNotifier(t, fake)

	err := n.NotifyOverdue(context.Background(), sampleEntries())
	assert.Error(t, err)
}

func TestFormatDigest(t *testing.T) {
	entries := sampleEntries()
	entries = append(entries, models.OverdueEntry{
		Borrowing: models.Borrowing{ID: "l2", DueDate: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)},
	})

	now := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	expected := "Overdue books: 2\n" +
		"\n1. Dune\n   Alice <alice@example.com>\n   due 2024-03-01 (10 days overdue)\n" +
		"\n2. unknown\n   unknown <>\n   due 2024-03-08 (3 days overdue)\n"

	assert.Equal(t, expected, FormatDigest(entries, now))
}

// manyEntries builds n overdue entries with long titles
func manyEntries(n int) []models.OverdueEntry {
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := make([]models.OverdueEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, models.OverdueEntry{
			Borrowing: models.Borrowing{ID: fmt.Sprintf("l%d", i), DueDate: due},
			BookTitle: fmt.Sprintf("Volume %d of %s", i+1, strings.Repeat("Collected Works ", 10)),
			UserName:  "Alice",
			UserEmail: "alice@example.com",
		})
	}
	return entries
}

func TestTelegramNotifier_LongDigestIsSplit(t *testing.T) {
	fake := &fakeTelegram{}
	n := newTestNotifier(t, fake)

	entries := manyEntries(100)
	require.NoError(t, n.NotifyOverdue(context.Background(), entries))

	sent := fake.messages()
	require.Greater(t, len(sent), 1)
	assert.True(t, strings.HasPrefix(sent[0]["text"], "Overdue books: 100\n"))

	var all strings.Builder
	for _, msg := range sent {
		assert.Equal(t, "42", msg["chat_id"])
		assert.LessOrEqual(t, len(msg["text"]), MaxMessageLength)
		all.WriteString(msg["text"])
	}
	for i := range entries {
		assert.Contains(t, all.String(), fmt.Sprintf("%d. Volume %d of ", i+1, i+1))
	}
}

func TestSplitDigest(t *testing.T) {
	now := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)

	t.Run("short digest is one message", func(t *testing.T) {
		parts := SplitDigest(sampleEntries(), now, MaxMessageLength)
		require.Len(t, parts, 1)
		assert.Equal(t, FormatDigest(sampleEntries(), now), parts[0])
	})

	t.Run("entries are not split", func(t *testing.T) {
		entries := manyEntries(30)
		parts := SplitDigest(entries, now, 1000)
		require.Greater(t, len(parts), 1)

		for _, part := range parts[1:] {
			assert.LessOrEqual(t, len(part), 1000)
			assert.Regexp(t, `^\d+\. Volume `, part)
		}
		assert.Equal(t,
			strings.ReplaceAll(FormatDigest(entries, now), "\n", ""),
			strings.ReplaceAll(strings.Join(parts, ""), "\n", ""))
	})

	t.Run("oversized entry is cut at a rune boundary", func(t *testing.T) {
		entries := []models.OverdueEntry{{
			Borrowing: models.Borrowing{ID: "l1", DueDate: now.AddDate(0, 0, -3)},
			BookTitle: strings.Repeat("Война и мир ", 50),
			UserEmail: "leo@example.com",
		}}

		parts := SplitDigest(entries, now, 101)
		require.Len(t, parts, 2)
		assert.Equal(t, "Overdue books: 1\n", parts[0])
		assert.LessOrEqual(t, len(parts[1]), 101)
		assert.True(t, utf8.ValidString(parts[1]))
		assert.True(t, strings.HasPrefix(parts[1], "1. Война"))
	})
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.NotifyOverdue(context.Background(), sampleEntries()))
}
