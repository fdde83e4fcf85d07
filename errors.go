package bundles

import "errors"

var (
	// Store errors.
	ErrNoStore = errors.New("bundles: no store configured")

	// Not found errors.
	ErrInstanceNotFound = errors.New("bundles: instance not found")
	ErrBundleNotFound   = errors.New("bundles: bundle not found")
	ErrScheduleNotFound = errors.New("bundles: schedule entry not found")

	// Conflict errors.
	ErrInstanceExists    = errors.New("bundles: instance already exists")
	ErrDuplicateSchedule = errors.New("bundles: duplicate schedule entry")

	// Validation errors.
	ErrInvalidPage     = errors.New("bundles: invalid page request")
	ErrNilBundle       = errors.New("bundles: bundle is nil")
	ErrNilInstance     = errors.New("bundles: instance is nil")
	ErrEmptyEventName  = errors.New("bundles: event name is empty")
	ErrEmptyBundleID   = errors.New("bundles: bundle id is empty")
	ErrEmptyInstanceID = errors.New("bundles: instance id is empty")

	// Execution errors.
	ErrInvocationTimeout = errors.New("bundles: invocation timed out")
)
