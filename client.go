// Package blockquote tracks quote posts and notices when the post they
// quote disappears.
//
// A Client owns a record repository and an external source. Track stores a
// new quote post, Reconcile runs one pass of the reconciliation job over
// the records that are due, and the auto-reconcile loop runs that pass on a
// fixed interval.
//
// Example usage:
//
//	src, err := xapi.New(os.Getenv("X_BEARER_TOKEN"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := sqlite.Open("blockquote.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	bq, err := blockquote.New(
//	    blockquote.WithStore(store),
//	    blockquote.WithSource(src),
//	    blockquote.WithAutoReconcile(true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bq.Close()
//
//	bq.OnRecordDeleted(func(id string) {
//	    log.Printf("quoted post of %s is gone", id)
//	})
//
//	rec, err := bq.Track(ctx, "1800000000000000001")
package blockquote

import (
	"context"
	"sync"
	"time"

	"github.com/agentstation/blockquote/internal/store/memory"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
	"github.com/agentstation/blockquote/pkg/reconcile"
	"github.com/agentstation/blockquote/pkg/records"
	"github.com/agentstation/blockquote/pkg/thread"
)

// Client tracks quote posts and reconciles them against the source.
type Client interface {

	// Reconciler runs reconciliation passes
	Reconciler

	// Tracker adds new quote posts
	Tracker

	// Records gives access to stored records
	Records

	// AutoReconciler provides access to automatic reconciliation controls
	AutoReconciler

	// Hooks provides access to event callback registration
	Hooks

	// Close stops automatic reconciliation and closes the store.
	Close() error
}

// client is the internal implementation of the Client interface.
type client struct {
	options *options

	store   records.Repository
	job     *reconcile.Job  // nil without a source
	builder *thread.Builder // nil without a source

	// reconcileMu admits one reconciliation at a time
	reconcileMu sync.Mutex

	// auto reconcile state
	autoMu     sync.Mutex
	autoCancel context.CancelFunc
	autoDone   chan struct{}

	hooks *hooks

	closeOnce sync.Once
}

// New creates a new Client instance with the given options.
func New(opts ...Option) (Client, error) {
	o, err := defaults().apply(opts...)
	if err != nil {
		return nil, err
	}

	c := &client{
		options: o,
		store:   o.store,
		hooks:   newHooks(),
	}
	if c.store == nil {
		logging.Debug().Msg("No store configured, using in-memory store")
		c.store = memory.New()
	}

	if o.source != nil {
		jobOpts := []reconcile.Option{reconcile.WithClock(o.now)}
		for _, obs := range o.observers {
			jobOpts = append(jobOpts, reconcile.WithObserver(obs))
		}
		jobOpts = append(jobOpts, o.reconcileOpts...)

		if c.job, err = reconcile.NewJob(c.store, o.source, jobOpts...); err != nil {
			return nil, errors.WrapResource("create", "reconcile job", "", err)
		}
		c.builder = thread.New(o.source, thread.WithMaxDepth(o.maxThreadDepth))
	}

	if o.autoReconcileEnabled {
		if err := c.AutoReconcileOn(); err != nil {
			return nil, errors.WrapResource("start", "auto-reconcile", "", err)
		}
	}

	return c, nil
}

// Close stops automatic reconciliation and closes the store.
func (c *client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.AutoReconcileOff()
		err = c.store.Close()
	})
	return err
}

func (c *client) now() time.Time {
	return c.options.now()
}
