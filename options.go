package blockquote

import (
	"time"

	"github.com/agentstation/blockquote/pkg/constants"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/reconcile"
	"github.com/agentstation/blockquote/pkg/records"
	"github.com/agentstation/blockquote/pkg/sources"
)

// Option is a function that configures a Client instance.
type Option func(*options) error

type options struct {
	store  records.Repository
	source sources.Source

	reconcileOpts []reconcile.Option
	observers     []reconcile.Observer

	autoReconcileEnabled  bool
	autoReconcileInterval time.Duration
	autoReconcileTimeout  time.Duration

	maxThreadDepth int
	now            func() time.Time
}

func defaults() *options {
	return &options{
		autoReconcileInterval: constants.DefaultReconcileInterval,
		autoReconcileTimeout:  constants.ReconcileContextTimeout,
		maxThreadDepth:        constants.DefaultMaxThreadDepth,
		now:                   func() time.Time { return time.Now().UTC() },
	}
}

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithStore sets the record repository. The client closes it on Close.
// Without one, records are kept in memory.
func WithStore(store records.Repository) Option {
	return func(o *options) error {
		if store == nil {
			return errors.NewValidationError("store", nil, "cannot be nil")
		}
		o.store = store
		return nil
	}
}

// WithSource sets the external source. Reconcile and Track need one.
func WithSource(source sources.Source) Option {
	return func(o *options) error {
		if source == nil {
			return errors.NewValidationError("source", nil, "cannot be nil")
		}
		o.source = source
		return nil
	}
}

// WithReconcileOptions passes options through to the reconciliation job.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(o *options) error {
		o.reconcileOpts = append(o.reconcileOpts, opts...)
		return nil
	}
}

// WithObserver adds an observer notified after every reconciliation run.
func WithObserver(obs reconcile.Observer) Option {
	return func(o *options) error {
		if obs == nil {
			return errors.NewValidationError("observer", nil, "cannot be nil")
		}
		o.observers = append(o.observers, obs)
		return nil
	}
}

// WithAutoReconcile configures whether New starts the auto-reconcile loop.
func WithAutoReconcile(enabled bool) Option {
	return func(o *options) error {
		o.autoReconcileEnabled = enabled
		return nil
	}
}

// WithAutoReconcileInterval configures how often the loop runs.
func WithAutoReconcileInterval(interval time.Duration) Option {
	return func(o *options) error {
		if interval <= 0 {
			return errors.NewValidationError("autoReconcileInterval", interval, "must be positive")
		}
		o.autoReconcileInterval = interval
		return nil
	}
}

// WithAutoReconcileTimeout bounds each automatic pass.
func WithAutoReconcileTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout <= 0 {
			return errors.NewValidationError("autoReconcileTimeout", timeout, "must be positive")
		}
		o.autoReconcileTimeout = timeout
		return nil
	}
}

// WithMaxThreadDepth limits how many quote or reply hops Track follows.
func WithMaxThreadDepth(depth int) Option {
	return func(o *options) error {
		if depth < 0 {
			return errors.NewValidationError("maxThreadDepth", depth, "cannot be negative")
		}
		o.maxThreadDepth = depth
		return nil
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.NewValidationError("clock", nil, "cannot be nil")
		}
		o.now = now
		return nil
	}
}
