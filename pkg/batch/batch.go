// Package batch runs a fixed list of independent operations with bounded
// concurrency.
//
// An Executor owns K permits. Each item acquires a permit before its operation
// starts, in input order. The first operation that fails with a rate-limited
// error trips a one-way backoff flag; items that acquire a permit after the
// trip fail with a BackoffError without invoking the operation. Operations
// already running are never cancelled and their real outcome is recorded.
//
// Failures are isolated per item and reported together as an
// *errors.AggregateError holding one *errors.OperationError per failed item,
// in input order. An Executor runs exactly one batch.
package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
)

// Operation processes one item.
type Operation[I, R any] func(ctx context.Context, item I) (R, error)

// Describer renders an item for error messages and logs.
type Describer[I any] func(item I) string

// State is the lifecycle state of an Executor.
type State int32

// Executor states.
const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Executor runs one batch of operations with at most Limit in flight.
type Executor[I, R any] struct {
	limit    int
	op       Operation[I, R]
	describe Describer[I]
	opts     options

	sem     *semaphore.Weighted
	backoff atomic.Bool
	state   atomic.Int32
}

// New creates an Executor with limit permits. limit must be at least 1.
// A nil describe renders items with fmt's %v verb.
func New[I, R any](limit int, op Operation[I, R], describe Describer[I], opts ...Option) (*Executor[I, R], error) {
	if limit < 1 {
		return nil, errors.NewValidationError("limit", limit, "concurrency limit must be at least 1")
	}
	if op == nil {
		return nil, errors.NewValidationError("operation", nil, "operation is required")
	}
	if describe == nil {
		describe = func(item I) string { return fmt.Sprintf("%v", item) }
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Executor[I, R]{
		limit:    limit,
		op:       op,
		describe: describe,
		opts:     o,
		sem:      semaphore.NewWeighted(int64(limit)),
	}, nil
}

// Run executes a single batch and returns one result per item in input
// order. Any unsquelched failure yields a nil slice and an
// *errors.AggregateError. A second call returns errors.ErrExecutorSpent.
func Run[I, R any](ctx context.Context, limit int, items []I, op Operation[I, R], describe Describer[I], opts ...Option) ([]R, error) {
	exec, err := New(limit, op, describe, opts...)
	if err != nil {
		return nil, err
	}
	return exec.Run(ctx, items)
}

// Limit returns the number of permits.
func (e *Executor[I, R]) Limit() int {
	return e.limit
}

// Name returns the batch name used in logs and errors.
func (e *Executor[I, R]) Name() string {
	return e.opts.name
}

// State returns the current lifecycle state.
func (e *Executor[I, R]) State() State {
	return State(e.state.Load())
}

// BackoffTripped reports whether a rate-limited failure was observed.
// The flag stays set after the batch finishes.
func (e *Executor[I, R]) BackoffTripped() bool {
	return e.backoff.Load()
}

// Run executes the batch. See the package documentation for semantics.
func (e *Executor[I, R]) Run(ctx context.Context, items []I) ([]R, error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, errors.ErrExecutorSpent
	}

	ctx, logger := e.logger(ctx)
	results := make([]R, len(items))
	if len(items) == 0 {
		e.state.Store(int32(StateSucceeded))
		return results, nil
	}

	start := time.Now()
	logger.Debug().Int("items", len(items)).Int("limit", e.limit).Msg("Batch started")

	failures := make([]*errors.OperationError, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			failures[i] = &errors.OperationError{Item: e.describe(item), Kind: errors.KindOther, Err: err}
			continue
		}

		if e.backoff.Load() {
			e.sem.Release(1)
			desc := e.describe(item)
			failures[i] = &errors.OperationError{
				Item: desc,
				Kind: errors.KindRateLimited,
				Err:  &errors.BackoffError{Item: desc},
			}
			continue
		}

		wg.Add(1)
		go func(i int, item I) {
			defer wg.Done()
			defer e.sem.Release(1)
			results[i], failures[i] = e.invoke(ctx, logger, item)
		}(i, item)
	}

	wg.Wait()

	var failed []*errors.OperationError
	for _, f := range failures {
		if f != nil {
			failed = append(failed, f)
		}
	}

	event := logger.Debug()
	if len(failed) > 0 {
		event = logger.Warn()
	}
	event.Int("items", len(items)).
		Int("failed", len(failed)).
		Bool("backoff_tripped", e.backoff.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("Batch finished")

	if len(failed) > 0 {
		e.state.Store(int32(StateFailed))
		return nil, &errors.AggregateError{Batch: e.opts.name, Total: len(items), Errors: failed}
	}

	e.state.Store(int32(StateSucceeded))
	return results, nil
}

// invoke runs the operation for one item. The backoff flag is set before
// the caller releases the permit, so the dispatch loop observes it on its
// next acquire.
func (e *Executor[I, R]) invoke(ctx context.Context, logger *zerolog.Logger, item I) (R, *errors.OperationError) {
	opCtx := ctx
	if e.opts.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, e.opts.timeout)
		defer cancel()
	}

	result, err := e.op(opCtx, item)
	if err == nil {
		return result, nil
	}

	var zero R
	opErr := errors.NewOperationError(e.describe(item), err)
	if opErr.Kind == errors.KindRateLimited && e.backoff.CompareAndSwap(false, true) {
		logger.Warn().Str("item", opErr.Item).Msg("Rate limited, backing off remaining items")
	}
	return zero, opErr
}

// logger tags ctx with the batch name so operations log with it too.
func (e *Executor[I, R]) logger(ctx context.Context) (context.Context, *zerolog.Logger) {
	if e.opts.logger != nil {
		ctx = logging.WithLogger(ctx, e.opts.logger)
	}
	if e.opts.name != "" {
		ctx = logging.WithBatch(ctx, e.opts.name)
	}
	return ctx, logging.FromContext(ctx)
}
