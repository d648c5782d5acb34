package errors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure kinds an external source can report.
type Kind int

const (
	// KindOther covers every failure that is not one of the specific kinds.
	KindOther Kind = iota
	// KindNotFound means the requested item does not exist upstream.
	KindNotFound
	// KindNotAuthorized means the item exists but may not be read.
	KindNotAuthorized
	// KindRateLimited means the source asked the caller to slow down.
	KindRateLimited
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNotAuthorized:
		return "not_authorized"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// SourceError is a failure reported by an external source for a single item.
type SourceError struct {
	Source     string
	ID         string
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *SourceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ID != "" {
		return fmt.Sprintf("%s: fetch %s failed (%s): %s", e.Source, e.ID, e.Kind, msg)
	}
	return fmt.Sprintf("%s: request failed (%s): %s", e.Source, e.Kind, msg)
}

// Unwrap implements errors.Unwrap
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *SourceError) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == ErrNotFound
	case KindNotAuthorized:
		return target == ErrNotAuthorized
	case KindRateLimited:
		return target == ErrRateLimited
	}
	return false
}

// NewSourceError creates a new SourceError
func NewSourceError(source, id string, kind Kind, err error) *SourceError {
	return &SourceError{
		Source: source,
		ID:     id,
		Kind:   kind,
		Err:    err,
	}
}

// KindOf resolves the failure kind carried anywhere in err's chain.
// Errors that carry no kind information are KindOther.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}

	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}

	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Kind
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	}
	return KindOther
}
