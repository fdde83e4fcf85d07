package schedule

import (
	"context"

	"github.com/jhosm/ProductBundles-sub000/id"
)

// Store is the persistence contract for schedule entries.
type Store interface {
	// RegisterSchedule persists a new entry. Returns
	// bundles.ErrDuplicateSchedule if an entry with the same JobKey
	// already exists.
	RegisterSchedule(ctx context.Context, entry *Entry) error

	// GetSchedule retrieves an entry by ID.
	// Returns bundles.ErrScheduleNotFound if absent.
	GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*Entry, error)

	// ListSchedules returns all entries.
	ListSchedules(ctx context.Context) ([]*Entry, error)

	// UpdateSchedule persists changes to an existing entry.
	// Returns bundles.ErrScheduleNotFound if absent.
	UpdateSchedule(ctx context.Context, entry *Entry) error

	// DeleteSchedule removes an entry by ID.
	// Returns bundles.ErrScheduleNotFound if absent.
	DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error
}
