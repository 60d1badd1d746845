package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the order id does not exist in the store.
	ErrNotFound = errors.New("order not found")

	// ErrInvalidState means execution was requested on an order that is no
	// longer PENDING. It distinguishes "already running or finished" from
	// genuine absence and is never retried.
	ErrInvalidState = errors.New("order is not in pending status")

	// ErrUnknownVenue means a quote named a venue the router is not
	// configured with. This is a configuration fault, not a transient one.
	ErrUnknownVenue = errors.New("unknown venue")
)

// ValidationError reports a malformed submission field. Validation failures
// are rejected before any state is created and are never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RoutingError wraps a failure to obtain a usable quote. Transient from the
// worker's perspective and retried up to the policy bound.
type RoutingError struct {
	Err error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed: %v", e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// ExecutionError wraps a venue execution rejection. Transient and retried,
// like RoutingError.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsTransient reports whether the worker may retry after this error.
func IsTransient(err error) bool {
	var routing *RoutingError
	var execution *ExecutionError
	return errors.As(err, &routing) || errors.As(err, &execution)
}
