package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/blockquote/internal/store/memory"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/records"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	r := records.Record{ID: "1", CreatedAt: now, LastUpdated: now, ForeignRef: "x"}
	require.NoError(t, s.Upsert(ctx, r))
	require.NoError(t, s.Upsert(ctx, r), "upsert is idempotent")
	assert.Equal(t, 1, s.Len())

	got, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, r, *got)

	_, err = s.Get(ctx, "2")
	assert.True(t, errors.IsNotFound(err))

	err = s.Upsert(ctx, records.Record{ID: "bad"})
	assert.True(t, errors.IsValidationError(err))
}

func TestQuery(t *testing.T) {
	old := now.Add(-48 * time.Hour)
	s := memory.New(
		records.Record{ID: "due", CreatedAt: old, LastUpdated: old, ForeignRef: "x"},
		records.Record{ID: "fresh", CreatedAt: now, LastUpdated: now, ForeignRef: "y"},
		records.Record{ID: "gone", CreatedAt: old, LastUpdated: old, ForeignRef: "z", Deleted: true},
	)

	got, err := s.Query(context.Background(), records.Query{DueBefore: now, HasForeignRef: true, NotDeleted: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "due", got[0].ID)
}

func TestList(t *testing.T) {
	var recs []records.Record
	for i := range 5 {
		created := now.Add(time.Duration(i) * time.Minute)
		recs = append(recs, records.Record{ID: string(rune('a' + i)), CreatedAt: created, LastUpdated: created})
	}
	s := memory.New(recs...)

	page, total, err := s.List(context.Background(), records.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].ID)
	assert.Equal(t, "c", page[1].ID)

	page, _, err = s.List(context.Background(), records.Page{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestClosed(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Close())

	_, err := s.Query(context.Background(), records.Query{})
	assert.Error(t, err)
}
