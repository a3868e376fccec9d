package verification

import (
	"errors"
	"fmt"
)

// ErrUnknownAction is returned when a decision carries an action the
// consumer cannot apply.
var ErrUnknownAction = errors.New("unknown classifier action")

// Error is returned when a consumer run cannot proceed, for example because
// the claim query failed. Per-task failures are counted, not returned.
type Error struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verification %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("verification %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(operation, message string, err error) *Error {
	return &Error{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
