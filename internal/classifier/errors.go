package classifier

import "errors"

// Common errors returned by classifier implementations
var (
	// ErrTransient is returned for temporary failures (network, timeouts,
	// upstream 5xx) that might resolve on retry
	ErrTransient = errors.New("transient classifier failure")

	// ErrInvalidResponse is returned when the response cannot be parsed or
	// fails validation
	ErrInvalidResponse = errors.New("invalid response from classifier")

	// ErrContentBlocked is returned when the model refuses the input because
	// of safety filters
	ErrContentBlocked = errors.New("content blocked by classifier safety filters")

	// ErrInvalidConfig is returned when a classifier is constructed with an
	// unusable configuration
	ErrInvalidConfig = errors.New("invalid classifier configuration")
)
