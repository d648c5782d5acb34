package reconcile

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/blockquote/pkg/constants"
	"github.com/agentstation/blockquote/pkg/errors"
)

type options struct {
	batchSize         int
	fetchConcurrency  int
	upsertConcurrency int
	operationTimeout  time.Duration
	clock             func() time.Time
	observers         []Observer
	logger            *zerolog.Logger
}

func defaultOptions() *options {
	return &options{
		batchSize:         constants.DefaultBatchSize,
		fetchConcurrency:  constants.DefaultFetchConcurrency,
		upsertConcurrency: constants.DefaultUpsertConcurrency,
		clock:             time.Now,
	}
}

// Option configures a Job.
type Option func(*options) error

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithBatchSize sets how many due records one run pulls.
func WithBatchSize(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("batch_size", n, "must be at least 1")
		}
		o.batchSize = n
		return nil
	}
}

// WithFetchConcurrency bounds concurrent calls to the source.
func WithFetchConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("fetch_concurrency", n, "must be at least 1")
		}
		o.fetchConcurrency = n
		return nil
	}
}

// WithUpsertConcurrency bounds concurrent store writes.
func WithUpsertConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("upsert_concurrency", n, "must be at least 1")
		}
		o.upsertConcurrency = n
		return nil
	}
}

// WithOperationTimeout bounds every single fetch and upsert. Zero disables it.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.NewValidationError("operation_timeout", d, "cannot be negative")
		}
		o.operationTimeout = d
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *options) error {
		if clock == nil {
			return errors.NewValidationError("clock", nil, "cannot be nil")
		}
		o.clock = clock
		return nil
	}
}

// WithObserver adds an observer notified after every run.
func WithObserver(obs Observer) Option {
	return func(o *options) error {
		if obs == nil {
			return errors.NewValidationError("observer", nil, "cannot be nil")
		}
		o.observers = append(o.observers, obs)
		return nil
	}
}

// WithLogger sets the logger. Without it the logger comes from the context.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}
