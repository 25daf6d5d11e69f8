/*
errors.go - Centralized error types for the inventory engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps them to status codes; the store layer returns
  ErrConcurrentModification when a versioned write loses a race.

ERROR CATEGORIES:
  1. Validation errors - malformed rule, zero stock delta, empty scope
  2. Lookup errors - unknown product, category or adjustment record
  3. State errors - revert of an already reverted record
  4. Conflict errors - versioned write lost the atomicity race (retryable)

USAGE:
    if errors.Is(err, inventory.ErrAlreadyReverted) {
        // terminal, nothing was changed
    }

    var nf *inventory.NotFoundError
    if errors.As(err, &nf) {
        log.Printf("missing %s %s", nf.Kind, nf.ID)
    }
*/
package inventory

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidDelta is returned for a stock delta of exactly zero.
	ErrInvalidDelta = errors.New("invalid stock delta")

	// ErrNotFound is returned when a referenced product, category or record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyReverted is returned when reverting a record that is already reverted.
	ErrAlreadyReverted = errors.New("adjustment already reverted")

	// ErrConcurrentModification is returned when a versioned write detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes invalid input for a single field.
// Cause, when set, is a more specific sentinel such as ErrInvalidDelta.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrValidation, e.Cause}
	}
	return []error{ErrValidation}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string // "product", "category", "adjustment"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AlreadyRevertedError reports when the record was reverted.
type AlreadyRevertedError struct {
	ID         AdjustmentID
	RevertedAt *time.Time
}

func (e *AlreadyRevertedError) Error() string {
	if e.RevertedAt != nil {
		return fmt.Sprintf("adjustment %d already reverted at %s", e.ID, e.RevertedAt.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("adjustment %d already reverted", e.ID)
}

func (e *AlreadyRevertedError) Unwrap() error { return ErrAlreadyReverted }

// ConflictError identifies the row whose versioned write failed.
type ConflictError struct {
	Kind string
	ID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s, retry the operation", e.Kind, e.ID)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentModification }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func invalidDelta(message string) error {
	return &ValidationError{Field: "delta", Message: message, Cause: ErrInvalidDelta}
}

func productNotFound(id ProductID) error {
	return &NotFoundError{Kind: "product", ID: id.String()}
}

func categoryNotFound(id CategoryID) error {
	return &NotFoundError{Kind: "category", ID: id.String()}
}

func adjustmentNotFound(id AdjustmentID) error {
	return &NotFoundError{Kind: "adjustment", ID: id.String()}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidDelta) ||
		errors.Is(err, ErrAlreadyReverted)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
