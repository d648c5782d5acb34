package batch

import (
	"time"

	"github.com/rs/zerolog"
)

type options struct {
	timeout time.Duration
	logger  *zerolog.Logger
	name    string
}

func defaultOptions() options {
	return options{}
}

// Option configures an Executor.
type Option func(*options)

// WithTimeout bounds each operation. The deadline reaches the operation
// through its context. Zero disables the per-operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets the logger. Without it the logger is taken from the
// context passed to Run.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName names the batch in logs and in the aggregate error message.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}
