package rate

import "errors"

var (
	// ErrUnknownAction is returned when no policy is configured for an action.
	ErrUnknownAction = errors.New("rate: unknown action")
	// ErrStoreUnavailable wraps backend failures. Callers must treat it as a denial.
	ErrStoreUnavailable = errors.New("rate: store unavailable")
)
