// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or has expired.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the operation is not allowed in the current relationship state.
	ErrConflict = errors.New("conflict")

	// ErrSelf indicates an operation that targets the caller's own identity.
	ErrSelf = errors.New("self operation")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrThrottled indicates a reporter exceeded its observation budget.
	ErrThrottled = errors.New("throttled")

	// ErrTransient marks storage failures that are safe to retry as a whole
	// transaction (serialization failure, deadlock).
	ErrTransient = errors.New("transient")

	// ErrTimeout indicates a statement cancelled by its statement timeout.
	ErrTimeout = errors.New("statement timeout")
)
