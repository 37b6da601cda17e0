// Package shared contains common domain errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// Infrastructure errors
	ErrStorage            = errors.New("storage error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "achievement", "store"
	Op      string // Operation that failed, e.g., "FindRecord", "AppendUnlock"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progress domain errors
var (
	ErrRecordNotFound   = NewDomainError("progress", "FindRecord", ErrNotFound, "progress record not found")
	ErrInvalidCourseID  = NewDomainError("progress", "Validate", ErrInvalidID, "course id is required")
	ErrInvalidRouteID   = NewDomainError("progress", "Validate", ErrInvalidID, "route id is required")
	ErrInvalidPercent   = NewDomainError("progress", "Validate", ErrInvalidInput, "progress must be a finite number")
	ErrNegativeMinutes  = NewDomainError("progress", "Validate", ErrNegativeValue, "watch minutes cannot be negative")
	ErrTooManyMinutes   = NewDomainError("progress", "Validate", ErrValueOutOfRange, "watch minutes cannot exceed one day per update")
	ErrInvalidGoal      = NewDomainError("progress", "SetGoals", ErrValueOutOfRange, "goal must be a positive number of minutes")
	ErrInvalidTheme     = NewDomainError("progress", "SetTheme", ErrInvalidInput, "theme must be dark or light")
	ErrInvalidUserID    = NewDomainError("progress", "Validate", ErrInvalidID, "user id is required")
	ErrNothingToPersist = NewDomainError("progress", "Save", ErrInvalidInput, "record is nil")
)

// Achievement domain errors
var (
	ErrUnknownAchievement = NewDomainError("achievement", "Find", ErrNotFound, "unknown achievement")
	ErrAlreadyUnlocked    = NewDomainError("achievement", "AppendUnlock", ErrAlreadyExists, "achievement already unlocked")
)

// Store errors
var (
	ErrStoreUnavailable = NewDomainError("store", "Write", ErrServiceUnavailable, "progress store is unavailable")
	ErrCorruptDocument  = NewDomainError("store", "Load", ErrStorage, "stored document is not valid JSON")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsUnavailable checks if the error means a backend could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrTimeout)
}
