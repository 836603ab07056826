package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"librarysystem/internal/models"
)

// Journal is an append-only log of library activity
type Journal interface {
	Record(ctx context.Context, activity models.Activity) error
	// Recent returns the last N activities, newest first
	Recent(ctx context.Context, limit int) ([]models.Activity, error)
	Close() error
}

// Prepare fills in the event id and timestamp of an activity when they are missing
func Prepare(activity models.Activity) models.Activity {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.OccurredAt.IsZero() {
		activity.OccurredAt = time.Now().UTC()
	}
	return activity
}

// MemoryJournal keeps activities in memory
type MemoryJournal struct {
	mu         sync.RWMutex
	activities []models.Activity
}

// NewMemoryJournal creates an empty in-memory journal
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Record appends an activity
func (j *MemoryJournal) Record(ctx context.Context, activity models.Activity) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.activities = append(j.activities, Prepare(activity))
	return nil
}

// Recent returns the last N activities, newest first
func (j *MemoryJournal) Recent(ctx context.Context, limit int) ([]models.Activity, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	sorted := make([]models.Activity, len(j.activities))
	copy(sorted, j.activities)
	// Oldest first, then reversed
	sort.SliceStable(sorted, func(i, k int) bool {
		return sorted[i].OccurredAt.Before(sorted[k].OccurredAt)
	})
	for i, k := 0, len(sorted)-1; i < k; i, k = i+1, k-1 {
		sorted[i], sorted[k] = sorted[k], sorted[i]
	}

	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// Close does nothing for the memory journal
func (j *MemoryJournal) Close() error {
	return nil
}

// NopJournal discards everything. Used when no journal backend is configured.
type NopJournal struct{}

func (NopJournal) Record(ctx context.Context, activity models.Activity) error { return nil }

func (NopJournal) Recent(ctx context.Context, limit int) ([]models.Activity, error) { return nil, nil }

func (NopJournal) Close() error { return nil }
