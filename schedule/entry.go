// Package schedule persists the recurring jobs declared by loaded
// bundles and fires them on a tick loop. Each bundle job becomes one
// schedule entry; registration is idempotent per (bundle, job) pair so
// reloading bundles never duplicates schedules.
package schedule

import (
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/id"
)

// Entry is one persisted recurring-job schedule.
type Entry struct {
	bundles.Entity

	ID          id.ScheduleID  `json:"id"`
	BundleID    string         `json:"bundle_id"`
	JobName     string         `json:"job_name"`
	Schedule    string         `json:"schedule"`
	Description string         `json:"description,omitempty"`
	Queue       string         `json:"queue,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	LastRunAt   *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time     `json:"next_run_at,omitempty"`
	Enabled     bool           `json:"enabled"`
}

// NewEntry builds an enabled entry for one of a bundle's declared
// recurring jobs. NextRunAt is left unset; the scheduler computes it
// when the entry is registered.
func NewEntry(bundleID string, job bundle.RecurringJob) *Entry {
	return &Entry{
		Entity:      bundles.NewEntity(),
		ID:          id.NewScheduleID(),
		BundleID:    bundleID,
		JobName:     job.Name,
		Schedule:    job.Schedule,
		Description: job.Description,
		Params:      job.Params,
		Enabled:     true,
	}
}

// JobKey identifies the (bundle, job) pair this entry schedules.
// Registration is idempotent per key.
func (e *Entry) JobKey() string {
	return e.BundleID + "." + e.JobName
}
