package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates that the request lacks a requester identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates that a counter transaction failed and may be retried once.
	ErrTransient = errors.New("transient failure")

	// ErrServiceUnavailable indicates that a backing service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInternalError indicates an internal server error.
	ErrInternalError = errors.New("internal error")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransientError wraps a failed counter transaction. It matches both
// ErrTransient and the underlying cause.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

// Unwrap exposes ErrTransient and the cause to errors.Is and errors.As.
func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewRestaurantNotFound is a shorthand for the most common lookup failure.
func NewRestaurantNotFound(id int64) *NotFoundError {
	return NewNotFoundError("restaurant", strconv.FormatInt(id, 10))
}

// NewUserNotFound reports a missing user.
func NewUserNotFound(id int64) *NotFoundError {
	return NewNotFoundError("user", strconv.FormatInt(id, 10))
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewTransientError creates a new TransientError.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{
		Op:  op,
		Err: err,
	}
}
