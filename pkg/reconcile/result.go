package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result describes one reconciliation run. It is returned even when the
// run fails, with the counters reached before the failure.
type Result struct {
	RunID     uuid.UUID     `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`

	// Pulled is the number of due records the store returned.
	Pulled int `json:"pulled"`
	// Found is the number of pulled records whose counterpart was fetched.
	Found int `json:"found"`
	// Squelched is the number of lookups that reported not found or not
	// authorized and were treated as confirmed absence.
	Squelched int `json:"squelched"`
	// Upserted is the number of records durably written.
	Upserted int `json:"upserted"`
	// MarkedDeleted lists ids newly marked deleted and durably written.
	MarkedDeleted []string `json:"marked_deleted,omitempty"`

	// Mismatch is set when Pulled differs from Found.
	Mismatch       bool `json:"mismatch"`
	BackoffTripped bool `json:"backoff_tripped"`
}

// NoOp reports whether the run found nothing due.
func (r *Result) NoOp() bool {
	return r.Pulled == 0
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r *Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("run_id", r.RunID.String()).
		Int("pulled", r.Pulled).
		Int("found", r.Found).
		Int("squelched", r.Squelched).
		Int("upserted", r.Upserted).
		Int("marked_deleted", len(r.MarkedDeleted)).
		Bool("mismatch", r.Mismatch).
		Bool("backoff_tripped", r.BackoffTripped).
		Dur("elapsed", r.Elapsed)
}

// Observer is notified once at the end of every run, successful or not.
type Observer interface {
	ObserveRun(res *Result, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(res *Result, err error)

// ObserveRun calls f.
func (f ObserverFunc) ObserveRun(res *Result, err error) {
	f(res, err)
}
