// Package errors holds the error types shared by blockquote packages.
//
// Sentinels identify a class of failure and are matched with errors.Is;
// the structured types carry the detail and are extracted with errors.As.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// New, Is, As and Join re-export the standard library helpers so callers
// need a single errors import.
var (
	New  = errors.New
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

var (
	// ErrNotFound means the item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized means the item exists but may not be read.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidInput means a caller passed a bad value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited means a source asked us to slow down.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackoff marks an item skipped after a rate limit in its batch.
	ErrBackoff = errors.New("backoff tripped")
	// ErrStore marks failures of the record store.
	ErrStore = errors.New("store failure")
	// ErrExecutorSpent is returned when a batch executor runs a second time.
	ErrExecutorSpent = errors.New("batch executor already used")
	// ErrReconcileInProgress is returned when a pass is already running.
	ErrReconcileInProgress = errors.New("reconciliation already in progress")
)

// IsNotFound reports whether err means the item does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsNotAuthorized reports whether err means the item may not be read.
func IsNotAuthorized(err error) bool { return errors.Is(err, ErrNotAuthorized) }

// IsValidationError reports whether err is a rejected input.
func IsValidationError(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsRateLimited reports whether err carries a rate limit anywhere in its chain.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsBackoff reports whether err contains an item skipped by backoff.
func IsBackoff(err error) bool { return errors.Is(err, ErrBackoff) }

// IsStoreError reports whether err came from the record store.
func IsStoreError(err error) bool { return errors.Is(err, ErrStore) }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError describes a rejected field value.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Is matches ErrInvalidInput.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// NewValidationError creates a ValidationError.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// APIError is an HTTP response from an external API that no more specific
// type describes.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Endpoint   string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("API error from %s: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("API error from %s (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches ErrRateLimited for 429 responses.
func (e *APIError) Is(target error) bool {
	return e.StatusCode == http.StatusTooManyRequests && target == ErrRateLimited
}

// NewAPIError creates an APIError.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// ConfigError is a missing or inconsistent setting.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Component == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a ConfigError.
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Message: message, Err: err}
}

// ParseError is malformed input in a data file or payload.
type ParseError struct {
	Format  string // json, yaml
	File    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
	}
	return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError creates a ParseError.
func NewParseError(format, file, message string, err error) *ParseError {
	return &ParseError{Format: format, File: file, Message: message, Err: err}
}

// WrapParse wraps err as a ParseError. A nil err stays nil.
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// IOError is a failed file operation.
type IOError struct {
	Operation string // read, write, open
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("IO error during %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("IO error during %s of %s: %v", e.Operation, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// WrapIO wraps err as an IOError. A nil err stays nil.
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Operation: operation, Path: path, Err: err}
}

// ResourceError is a failure to build or open a component.
type ResourceError struct {
	Operation string // create, open, start
	Resource  string // store, client, server
	ID        string
	Err       error
}

func (e *ResourceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Resource, e.Err)
	}
	return fmt.Sprintf("failed to %s %s %s: %v", e.Operation, e.Resource, e.ID, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// WrapResource wraps err as a ResourceError. A nil err stays nil.
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return &ResourceError{Operation: operation, Resource: resource, ID: id, Err: err}
}
