package errors

import (
	"fmt"
	"strings"
)

// OperationError is the failure of one item inside a batch.
type OperationError struct {
	Item string // description of the input item
	Kind Kind
	Err  error
}

// Error implements the error interface
func (e *OperationError) Error() string {
	return fmt.Sprintf("item %s failed (%s): %v", e.Item, e.Kind, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError wraps err for the described item, deriving its kind from the cause.
func NewOperationError(item string, err error) *OperationError {
	return &OperationError{
		Item: item,
		Kind: KindOf(err),
		Err:  err,
	}
}

// BackoffError marks an item that was never started because an earlier item
// in the same batch was rate limited.
type BackoffError struct {
	Item string
}

// Error implements the error interface
func (e *BackoffError) Error() string {
	return fmt.Sprintf("item %s skipped: backing off after rate limit", e.Item)
}

// Is implements errors.Is support
func (e *BackoffError) Is(target error) bool {
	return target == ErrBackoff
}

// AggregateError is the batch-level failure holding one OperationError per
// failed item, in input order.
type AggregateError struct {
	Batch  string
	Total  int
	Errors []*OperationError
}

// Error implements the error interface
func (e *AggregateError) Error() string {
	name := e.Batch
	if name == "" {
		name = "batch"
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s: %d of %d items failed: %s", name, len(e.Errors), e.Total, strings.Join(msgs, "; "))
}

// Unwrap exposes every item failure to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}

// Count returns how many item failures have the given kind.
func (e *AggregateError) Count(kind Kind) int {
	n := 0
	for _, err := range e.Errors {
		if err.Kind == kind {
			n++
		}
	}
	return n
}

// StoreError represents an I/O failure from the record store.
type StoreError struct {
	Operation string // "query", "upsert", "get", "list"
	ID        string
	Err       error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s of %s failed: %v", e.Operation, e.ID, e.Err)
	}
	return fmt.Sprintf("store %s failed: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// WrapStore wraps an error as a StoreError
func WrapStore(operation, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Operation: operation, ID: id, Err: err}
}
