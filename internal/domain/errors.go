package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyName is returned when a location has no name.
	ErrEmptyName = errors.New("location name cannot be empty")

	// ErrInvalidLocationState is returned when a state is outside the known set.
	ErrInvalidLocationState = errors.New("invalid location state")

	// ErrInvalidConfidence is returned when a confidence score is outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence score must be between 0 and 1")

	// ErrNegativeRatings is returned when a ratings total is negative.
	ErrNegativeRatings = errors.New("user ratings total cannot be negative")
)

// ValidationError describes a failed check on a single field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap exposes both ErrValidation and the specific sentinel, so callers can
// match either with errors.Is.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}
