package ch

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"librarysystem/internal/journal"
	"librarysystem/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClickHouseJournal writes library activity to the ClickHouse `activity` table
type ClickHouseJournal struct {
	conn clickhouse.Conn
}

// NewOptions builds the connection options shared by the native connection and the database/sql handle
func NewOptions(host string, port int, database, user, password string, useTLS bool) *clickhouse.Options {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	return options
}

// OpenSQL opens a database/sql handle, as needed by goose
func OpenSQL(options *clickhouse.Options) *sql.DB {
	return clickhouse.OpenDB(options)
}

// NewClickHouseJournal creates a new ClickHouse connection
func NewClickHouseJournal(host string, port int, database, user, password string, useTLS bool) (*ClickHouseJournal, error) {
	conn, err := clickhouse.Open(NewOptions(host, port, database, user, password, useTLS))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return newJournal(context.Background(), conn)
}

// newJournal checks the connection and closes it when the server does not answer
func newJournal(ctx context.Context, conn clickhouse.Conn) (*ClickHouseJournal, error) {
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseJournal{conn: conn}, nil
}

// Record inserts one activity row
func (j *ClickHouseJournal) Record(ctx context.Context, activity models.Activity) error {
	activity = journal.Prepare(activity)

	eventID, err := uuid.Parse(activity.ID)
	if err != nil {
		return fmt.Errorf("invalid activity id %q: %w", activity.ID, err)
	}

	details := "{}"
	if len(activity.Details) > 0 {
		details, err = json.MarshalToString(activity.Details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
	}

	err = j.conn.Exec(ctx, `INSERT INTO activity (event_id, occurred_at, kind, book_id, user_id, borrowing_id, details) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		eventID, activity.OccurredAt, activity.Kind, activity.BookID, activity.UserID, activity.BorrowingID, details)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// Recent returns the last N activities, newest first
func (j *ClickHouseJournal) Recent(ctx context.Context, limit int) ([]models.Activity, error) {
	query := `SELECT event_id, occurred_at, kind, book_id, user_id, borrowing_id, details FROM activity ORDER BY occurred_at DESC, event_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent activity: %w", err)
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var (
			activity models.Activity
			eventID  uuid.UUID
			details  string
		)
		if err := rows.Scan(&eventID, &activity.OccurredAt, &activity.Kind, &activity.BookID, &activity.UserID, &activity.BorrowingID, &details); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activity.ID = eventID.String()
		activity.OccurredAt = activity.OccurredAt.UTC()
		if err := json.UnmarshalFromString(details, &activity.Details); err != nil {
			return nil, fmt.Errorf("failed to decode activity details: %w", err)
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

// Close closes the database connection
func (j *ClickHouseJournal) Close() error {
	if j.conn != nil {
		return j.conn.Close()
	}
	return nil
}
