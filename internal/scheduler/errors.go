package scheduler

import "fmt"

// Error is returned when a scheduler operation cannot run at all, for
// example because its selection query failed. Per-row failures are counted,
// not returned.
type Error struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scheduler %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("scheduler %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(operation, message string, err error) *Error {
	return &Error{Operation: operation, Message: message, Err: err}
}
