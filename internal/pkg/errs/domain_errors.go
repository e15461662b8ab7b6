package errs

import "errors"

// Error categories shared by the engine, the store and the HTTP layer.
// Specific reasons are marked with one of these so callers can branch on the category.
var (
	// window is malformed or out of policy; resubmit with a corrected window
	ErrValidation = errors.New("validation failed")
	// window overlaps an approved reservation
	ErrConflict = errors.New("reservation conflict")
	// transition not legal from the current status
	ErrInvalidState = errors.New("invalid reservation state")
	// withdrawal attempted inside the lead-time guard
	ErrTooLate = errors.New("too late to withdraw")
	ErrNotFound = errors.New("reservation not found")
	// conditional write lost against a concurrent transition
	ErrStaleState = errors.New("stale reservation state")
	ErrForbidden  = errors.New("not the reservation owner")

	ErrDatabaseOperationFailed = errors.New("database operation failed")
)
