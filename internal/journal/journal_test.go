package journal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarysystem/internal/models"
)

func TestPrepare(t *testing.T) {
	a := Prepare(models.Activity{Kind: models.ActivityBookAdded})

	_, err := uuid.Parse(a.ID)
	assert.NoError(t, err, "expected a UUID event id")
	assert.False(t, a.OccurredAt.IsZero())

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kept := Prepare(models.Activity{ID: "fixed", OccurredAt: at})
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, at, kept.OccurredAt)
}

func TestMemoryJournal_Recent(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, kind := range []string{models.ActivityBookAdded, models.ActivityUserRegistered, models.ActivityBookBorrowed} {
		require.NoError(t, j.Record(ctx, models.Activity{Kind: kind, OccurredAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, models.ActivityBookBorrowed, recent[0].Kind)
	assert.Equal(t, models.ActivityUserRegistered, recent[1].Kind)

	all, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestNopJournal(t *testing.T) {
	var j Journal = NopJournal{}
	ctx := context.Background()

	assert.NoError(t, j.Record(ctx, models.Activity{Kind: models.ActivityBookAdded}))
	recent, err := j.Recent(ctx, 10)
	assert.NoError(t, err)
	assert.Empty(t, recent)
	assert.NoError(t, j.Close())
}
