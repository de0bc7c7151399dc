package domain

import (
	"errors"
	"fmt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors: compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

var (
	// ErrValidation is returned when an input violates an enumeration or field
	// constraint. Concrete failures are reported as *ValidationError, which
	// matches ErrValidation under errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrReferentialIntegrity is returned when a record references a user id
	// that the identity provider does not know about.
	ErrReferentialIntegrity = errors.New("referenced user does not exist")

	// ErrNotFound is returned when no record matches the given id.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyResolved is returned when a circuit-breaker event that has
	// already been resolved is resolved again. The stored resolved_at is left
	// untouched.
	ErrAlreadyResolved = errors.New("circuit breaker event is already resolved")

	// ErrStorageUnavailable is returned when the backing store cannot be
	// reached or fails to make a write durable. Callers own the retry policy.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated caller lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenInvalid is returned when a token cannot be parsed or its signature
	// does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ValidationError describes the first field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a *ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is makes every *ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError wraps a driver or transport failure so that it matches
// ErrStorageUnavailable while keeping the cause inspectable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsReferential reports whether err is an unknown-user failure.
func IsReferential(err error) bool {
	return errors.Is(err, ErrReferentialIntegrity)
}

// IsNotFound reports whether err (or any error in its chain) is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for errors that represent a state conflict such as
// double resolution.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyResolved)
}

// IsUnavailable reports whether err is a storage transport or durability failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsCallerError reports whether err indicates a caller bug that must never be
// retried automatically.
func IsCallerError(err error) bool {
	return IsValidation(err) || IsReferential(err)
}
