package reconcile_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/blockquote/internal/sources/local"
	"github.com/agentstation/blockquote/internal/store/memory"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
	"github.com/agentstation/blockquote/pkg/records"
	"github.com/agentstation/blockquote/pkg/reconcile"
	"github.com/agentstation/blockquote/pkg/sources"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// overdue returns a record created ten days ago and last checked eight
// days ago, so it is one day past its weekly check.
func overdue(id, ref string) records.Record {
	return records.Record{
		ID:          id,
		CreatedAt:   now.Add(-10 * 24 * time.Hour),
		LastUpdated: now.Add(-8 * 24 * time.Hour),
		ForeignRef:  ref,
	}
}

// countingStore wraps a memory store, counting upserts and failing
// upserts for selected ids.
type countingStore struct {
	*memory.Store
	upserts  atomic.Int32
	failOn   map[string]error
	queryErr error
	extra    []records.Record
}

func (c *countingStore) Query(ctx context.Context, q records.Query) ([]records.Record, error) {
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	recs, err := c.Store.Query(ctx, q)
	return append(recs, c.extra...), err
}

func (c *countingStore) Upsert(ctx context.Context, r records.Record) error {
	if err := c.failOn[r.ID]; err != nil {
		return err
	}
	c.upserts.Add(1)
	return c.Store.Upsert(ctx, r)
}

func newSource(t *testing.T, ids ...string) *local.Source {
	t.Helper()
	var posts []sources.Post
	for _, id := range ids {
		posts = append(posts, sources.Post{ID: id})
	}
	src, err := local.New(local.WithPosts(posts...))
	require.NoError(t, err)
	return src
}

func newJob(t *testing.T, store records.Store, src sources.Source, opts ...reconcile.Option) *reconcile.Job {
	t.Helper()
	opts = append([]reconcile.Option{reconcile.WithClock(clock), reconcile.WithLogger(logging.NewNopLogger())}, opts...)
	job, err := reconcile.NewJob(store, src, opts...)
	require.NoError(t, err)
	return job
}

func mustGet(t *testing.T, s *memory.Store, id string) records.Record {
	t.Helper()
	r, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return *r
}

func TestRunMarksMissingCounterpartDeleted(t *testing.T) {
	store := &countingStore{Store: memory.New(overdue("A", "x"), overdue("B", "y"), overdue("C", "z"))}
	src := newSource(t, "x", "z")

	res, err := newJob(t, store, src).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Pulled)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 1, res.Squelched)
	assert.Equal(t, 3, res.Upserted)
	assert.True(t, res.Mismatch)
	assert.False(t, res.BackoffTripped)
	assert.Equal(t, []string{"B"}, res.MarkedDeleted)
	assert.Equal(t, int32(3), store.upserts.Load())

	for _, id := range []string{"A", "B", "C"} {
		r := mustGet(t, store.Store, id)
		assert.Equal(t, now, r.LastUpdated, "record %s", id)
		assert.Equal(t, id == "B", r.Deleted, "record %s", id)
	}
}

func TestRunIsIdempotentWithinTheSameInstant(t *testing.T) {
	store := &countingStore{Store: memory.New(overdue("A", "x"), overdue("B", "y"))}
	job := newJob(t, store, newSource(t, "x", "y"))

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), store.upserts.Load())

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.NoOp())
	assert.Equal(t, 0, res.Upserted)
	assert.Equal(t, int32(2), store.upserts.Load())
}

func TestRunNoDueRecords(t *testing.T) {
	fresh := records.Record{ID: "A", CreatedAt: now, LastUpdated: now, ForeignRef: "x"}
	src := newSource(t, "x")

	res, err := newJob(t, memory.New(fresh), src).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.NoOp())
	assert.False(t, res.Mismatch)
	assert.Zero(t, src.Calls())
}

func TestDeletedIsSticky(t *testing.T) {
	t.Run("deleted records are not pulled again", func(t *testing.T) {
		store := memory.New(overdue("B", "y"))
		src := newSource(t)

		_, err := newJob(t, store, src).Run(context.Background())
		require.NoError(t, err)
		require.True(t, mustGet(t, store, "B").Deleted)

		src.Add(sources.Post{ID: "y"})
		later := func() time.Time { return now.Add(30 * 24 * time.Hour) }
		res, err := newJob(t, store, src, reconcile.WithClock(later)).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, res.NoOp())
		assert.True(t, mustGet(t, store, "B").Deleted)
	})

	t.Run("matching counterpart leaves deleted set", func(t *testing.T) {
		gone := overdue("B", "y")
		gone.Deleted = true
		// a store that returns a deleted record anyway
		store := &countingStore{Store: memory.New(), extra: []records.Record{gone}}

		res, err := newJob(t, store, newSource(t, "y")).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Found)
		assert.Empty(t, res.MarkedDeleted)
		assert.True(t, mustGet(t, store.Store, "B").Deleted)
	})
}

func TestNotAuthorizedIsSquelched(t *testing.T) {
	store := memory.New(overdue("A", "x"))
	src := newSource(t, "x")
	src.FailWith("x", errors.KindNotAuthorized)

	res, err := newJob(t, store, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Squelched)
	assert.Equal(t, []string{"A"}, res.MarkedDeleted)
	assert.True(t, mustGet(t, store, "A").Deleted)
}

func TestRateLimitAbortsBeforeUpsert(t *testing.T) {
	store := &countingStore{Store: memory.New(overdue("A", "x"), overdue("B", "y"), overdue("C", "z"))}
	src := newSource(t, "x", "y", "z")
	src.FailWith("x", errors.KindRateLimited)

	job := newJob(t, store, src, reconcile.WithFetchConcurrency(1))
	res, err := job.Run(context.Background())
	require.Error(t, err)

	var agg *errors.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.True(t, errors.IsRateLimited(err))
	assert.True(t, res.BackoffTripped)
	assert.Equal(t, 1, src.Calls(), "nothing starts after the trip")
	assert.Zero(t, store.upserts.Load())

	// untouched records remain due for the next tick
	due, err := store.Query(context.Background(), records.Query{DueBefore: now, HasForeignRef: true, NotDeleted: true})
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestOtherFetchFailureAbortsTick(t *testing.T) {
	store := &countingStore{Store: memory.New(overdue("A", "x"), overdue("B", "y"))}
	src := newSource(t, "x", "y")
	boom := stderrors.New("connection reset")
	src.Fail("y", boom)

	res, err := newJob(t, store, src).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, src.Calls(), "siblings still run")
	assert.Zero(t, res.Upserted)
	assert.Zero(t, store.upserts.Load())
}

func TestUpsertFailureKeepsCommittedWrites(t *testing.T) {
	diskFull := stderrors.New("disk full")
	store := &countingStore{
		Store:  memory.New(overdue("A", "x"), overdue("B", "y"), overdue("C", "z")),
		failOn: map[string]error{"B": diskFull},
	}

	res, err := newJob(t, store, newSource(t, "x", "z")).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsStoreError(err))
	assert.ErrorIs(t, err, diskFull)

	var agg *errors.AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 1)
	assert.Contains(t, agg.Errors[0].Item, "record B")

	assert.Equal(t, 2, res.Upserted)
	assert.Empty(t, res.MarkedDeleted)
	assert.Equal(t, now, mustGet(t, store.Store, "A").LastUpdated)
	assert.False(t, mustGet(t, store.Store, "B").Deleted, "failed write is not applied")
}

func TestQueryFailure(t *testing.T) {
	store := &countingStore{Store: memory.New(), queryErr: stderrors.New("locked")}

	_, err := newJob(t, store, newSource(t)).Run(context.Background())
	assert.True(t, errors.IsStoreError(err))
}

func TestBatchSizeLimitsPull(t *testing.T) {
	var recs []records.Record
	var refs []string
	for i := range 30 {
		ref := fmt.Sprintf("ref-%02d", i)
		recs = append(recs, overdue(fmt.Sprintf("rec-%02d", i), ref))
		refs = append(refs, ref)
	}
	store := memory.New(recs...)

	res, err := newJob(t, store, newSource(t, refs...)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, res.Pulled)
	assert.False(t, res.Mismatch)

	res, err = newJob(t, store, newSource(t, refs...), reconcile.WithBatchSize(10)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Pulled, "only the remainder is still due")
}

// gatedSource tracks how many fetches are in flight.
type gatedSource struct {
	sources.Source
	inFlight, peak atomic.Int32
}

func (g *gatedSource) FetchByID(ctx context.Context, id string) (*sources.Post, error) {
	cur := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		old := g.peak.Load()
		if cur <= old || g.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return g.Source.FetchByID(ctx, id)
}

func TestFetchConcurrencyIsBounded(t *testing.T) {
	var recs []records.Record
	var refs []string
	for i := range 20 {
		ref := fmt.Sprintf("r%d", i)
		recs = append(recs, overdue(fmt.Sprintf("id%d", i), ref))
		refs = append(refs, ref)
	}
	src := &gatedSource{Source: newSource(t, refs...)}

	_, err := newJob(t, memory.New(recs...), src, reconcile.WithBatchSize(20), reconcile.WithFetchConcurrency(3)).Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, int(src.peak.Load()), 3)
}

func TestObserverCalledOncePerRun(t *testing.T) {
	var mu sync.Mutex
	var seen []error
	obs := reconcile.ObserverFunc(func(res *reconcile.Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NotNil(t, res)
		seen = append(seen, err)
	})

	store := &countingStore{Store: memory.New(overdue("A", "x"))}
	job := newJob(t, store, newSource(t, "x"), reconcile.WithObserver(obs))
	_, err := job.Run(context.Background())
	require.NoError(t, err)

	store.queryErr = stderrors.New("locked")
	_, err = job.Run(context.Background())
	require.Error(t, err)

	require.Len(t, seen, 2)
	assert.NoError(t, seen[0])
	assert.Error(t, seen[1])
}

func TestRunLogsWithRunID(t *testing.T) {
	tl := logging.NewTestLogger(t)
	store := memory.New(overdue("A", "x"), overdue("B", "y"))

	job, err := reconcile.NewJob(store, newSource(t, "x"), reconcile.WithClock(clock), reconcile.WithLogger(tl.Logger))
	require.NoError(t, err)

	res, err := job.Run(context.Background())
	require.NoError(t, err)

	tl.AssertContains(t, `"run_id":"`+res.RunID.String()+`"`)
	tl.AssertContains(t, `"source":"`+local.Name+`"`)
	tl.AssertContains(t, `"batch":"fetch"`)
	tl.AssertContains(t, `"batch":"upsert"`)
	tl.AssertContains(t, "Pulled records and fetched counterparts differ")

	// the squelched lookup for B logs with its record id
	var squelch string
	for _, line := range tl.Lines() {
		if strings.Contains(line, "Counterpart absent") {
			squelch = line
		}
	}
	assert.Contains(t, squelch, `"record_id":"B"`)
	assert.Contains(t, squelch, `"batch":"fetch"`)
	tl.AssertContains(t, "Reconciliation finished")
}

func TestNewJobValidation(t *testing.T) {
	src := newSource(t)
	store := memory.New()

	_, err := reconcile.NewJob(nil, src)
	assert.True(t, errors.IsValidationError(err))
	_, err = reconcile.NewJob(store, nil)
	assert.True(t, errors.IsValidationError(err))

	for _, opt := range []reconcile.Option{
		reconcile.WithBatchSize(0),
		reconcile.WithFetchConcurrency(0),
		reconcile.WithUpsertConcurrency(-1),
		reconcile.WithOperationTimeout(-time.Second),
		reconcile.WithClock(nil),
		reconcile.WithObserver(nil),
	} {
		_, err := reconcile.NewJob(store, src, opt)
		assert.True(t, errors.IsValidationError(err))
	}
}
