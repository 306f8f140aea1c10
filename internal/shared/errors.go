package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Admission errors
	ErrRateLimited  = fmt.Errorf("sync rate limited")
	ErrUserRequired = fmt.Errorf("user id is required")

	// Queue and message errors
	ErrQueueUnavailable = fmt.Errorf("message queue unavailable")
	ErrValidation       = fmt.Errorf("message validation failed")

	// Provider errors
	ErrUnknownProvider = fmt.Errorf("unknown provider")
	ErrAPIRequest      = fmt.Errorf("API request failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)

// RateLimitedError reports that a user initiated a sync inside the cooldown
// window. RetryAfterSeconds is the whole-second ceiling of the remaining wait.
type RateLimitedError struct {
	RetryAfterSeconds int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("sync rate limited: retry in %ds", e.RetryAfterSeconds)
}

// Unwrap lets errors.Is match against [ErrRateLimited].
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
