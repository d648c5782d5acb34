// Package reconcile checks due tracked records against the external source
// and marks those whose counterpart has disappeared.
//
// One Run is one tick:
//
//  1. pull up to BatchSize due candidates, oldest overdue first
//  2. fetch every counterpart with bounded concurrency; not found and not
//     authorized count as confirmed absence
//  3. stamp LastUpdated and mark records without a counterpart deleted
//  4. upsert every pulled record with bounded concurrency
//
// Any unsquelched failure aborts the rest of the tick. Records already
// written stay written; the others remain due and are retried on a later
// tick. Deleted is never reset to false.
package reconcile

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/blockquote/pkg/batch"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
	"github.com/agentstation/blockquote/pkg/records"
	"github.com/agentstation/blockquote/pkg/sources"
)

// Job is a reusable reconciliation pass. Every Run builds fresh executors,
// so backoff never carries over between ticks. Run must not be called
// concurrently for the same store; the client serializes it.
type Job struct {
	store  records.Store
	source sources.Source
	opts   *options
}

// NewJob creates a Job over store and source.
func NewJob(store records.Store, source sources.Source, opts ...Option) (*Job, error) {
	if store == nil {
		return nil, errors.NewValidationError("store", nil, "cannot be nil")
	}
	if source == nil {
		return nil, errors.NewValidationError("source", nil, "cannot be nil")
	}

	o, err := defaultOptions().apply(opts...)
	if err != nil {
		return nil, err
	}
	return &Job{store: store, source: source, opts: o}, nil
}

// lookup is the outcome of fetching one counterpart.
type lookup struct {
	post      *sources.Post
	squelched bool
}

// Run performs one reconciliation pass.
func (j *Job) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	now := j.opts.clock()
	res = &Result{RunID: uuid.New(), StartedAt: now}

	if j.opts.logger != nil {
		ctx = logging.WithLogger(ctx, j.opts.logger)
	}
	ctx = logging.WithSource(logging.WithRun(ctx, res.RunID.String()), j.source.Name())
	logger := logging.FromContext(ctx)

	defer func() {
		res.Elapsed = time.Since(start)
		if err != nil {
			logger.Error().Err(err).EmbedObject(res).Msg("Reconciliation aborted")
		} else {
			logger.Info().EmbedObject(res).Msg("Reconciliation finished")
		}
		for _, obs := range j.opts.observers {
			obs.ObserveRun(res, err)
		}
	}()

	due, err := j.store.Query(ctx, records.Query{
		DueBefore:     now,
		HasForeignRef: true,
		NotDeleted:    true,
		Limit:         j.opts.batchSize,
	})
	if err != nil {
		return res, errors.WrapStore("query", "", err)
	}

	res.Pulled = len(due)
	logger.Debug().Int("pulled", res.Pulled).Int("limit", j.opts.batchSize).Msg("Pulled due records")
	if len(due) == 0 {
		return res, nil
	}

	lookups, tripped, err := j.fetch(ctx, due)
	res.BackoffTripped = tripped
	if err != nil {
		return res, fmt.Errorf("fetch counterparts: %w", err)
	}

	found := make(map[string]bool, len(lookups))
	for _, l := range lookups {
		switch {
		case l.squelched:
			res.Squelched++
		case l.post != nil:
			res.Found++
			found[l.post.ID] = true
		}
	}

	res.Mismatch = res.Pulled != res.Found
	if res.Mismatch {
		logger.Warn().
			Int("pulled", res.Pulled).
			Int("found", res.Found).
			Int("squelched", res.Squelched).
			Msg("Pulled records and fetched counterparts differ")
	}

	marked := make([]bool, len(due))
	for i := range due {
		due[i].LastUpdated = now
		if !found[due[i].ForeignRef] && !due[i].Deleted {
			due[i].Deleted = true
			marked[i] = true
		}
	}

	written, err := j.upsert(ctx, logger, due)
	for i := range due {
		if written[i] {
			res.Upserted++
			if marked[i] {
				res.MarkedDeleted = append(res.MarkedDeleted, due[i].ID)
			}
		}
	}
	if err != nil {
		return res, fmt.Errorf("persist records: %w", err)
	}
	return res, nil
}

func (j *Job) fetch(ctx context.Context, due []records.Record) ([]lookup, bool, error) {
	op := func(ctx context.Context, r records.Record) (lookup, error) {
		ctx = logging.WithRecord(ctx, r.ID)
		post, err := j.source.FetchByID(ctx, r.ForeignRef)
		if err == nil {
			return lookup{post: post}, nil
		}

		switch kind := errors.KindOf(err); kind {
		case errors.KindNotFound, errors.KindNotAuthorized:
			logging.Ctx(ctx).Debug().
				Str("foreign_ref", r.ForeignRef).
				Stringer("kind", kind).
				Msg("Counterpart absent")
			return lookup{squelched: true}, nil
		default:
			return lookup{}, err
		}
	}

	exec, err := batch.New(j.opts.fetchConcurrency, op, describe,
		batch.WithName("fetch"),
		batch.WithTimeout(j.opts.operationTimeout),
	)
	if err != nil {
		return nil, false, err
	}

	lookups, err := exec.Run(ctx, due)
	return lookups, exec.BackoffTripped(), err
}

func (j *Job) upsert(ctx context.Context, logger *zerolog.Logger, due []records.Record) ([]bool, error) {
	written := make([]bool, len(due))
	index := make(map[string]int, len(due))
	for i := range due {
		index[due[i].ID] = i
	}

	var count atomic.Int32
	op := func(ctx context.Context, r records.Record) (struct{}, error) {
		if err := j.store.Upsert(ctx, r); err != nil {
			return struct{}{}, errors.WrapStore("upsert", r.ID, err)
		}
		written[index[r.ID]] = true
		count.Add(1)
		return struct{}{}, nil
	}

	exec, err := batch.New(j.opts.upsertConcurrency, op, describe,
		batch.WithName("upsert"),
		batch.WithTimeout(j.opts.operationTimeout),
	)
	if err != nil {
		return written, err
	}

	_, err = exec.Run(ctx, due)
	logger.Debug().Int32("upserted", count.Load()).Msg("Persisted records")
	return written, err
}

func describe(r records.Record) string {
	return fmt.Sprintf("record %s (ref %s)", r.ID, r.ForeignRef)
}
