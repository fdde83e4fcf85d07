// Package bundle defines the extension capability implemented by
// loadable units and the registry that discovers, constructs, and
// indexes them.
//
// A bundle is third-party logic compiled independently of the host. It
// declares a descriptor (identity, configuration schema, recurring
// jobs) and reacts to named events by transforming instances.
package bundle

import (
	"context"

	"github.com/jhosm/ProductBundles-sub000/instance"
)

// Bundle is the capability interface every extension unit implements.
//
// HandleEvent must return a new instance sharing the caller's instance
// ID; the host never assumes the input was left unmodified, but it
// persists only the returned instance. Upgrade migrates an instance
// written by an older bundle version to the current one.
//
// Bundle logic is untrusted: the host bounds HandleEvent in time and
// recovers panics from both operations.
type Bundle interface {
	// Descriptor returns the bundle's immutable metadata.
	Descriptor() Descriptor

	// HandleEvent reacts to a named event by transforming the instance.
	HandleEvent(ctx context.Context, eventName string, inst *instance.Instance) (*instance.Instance, error)

	// Upgrade migrates an instance to the bundle's current version.
	Upgrade(ctx context.Context, inst *instance.Instance) (*instance.Instance, error)
}

// Factory constructs a bundle. Compiled-in bundles register a Factory
// directly; plugin units export one under the NewBundleSymbol name.
type Factory func() (Bundle, error)

// Descriptor is a bundle's identity and metadata. It is immutable after
// load; its lifetime is the process lifetime (no hot-reload).
type Descriptor struct {
	// ID uniquely identifies the bundle within one loaded registry
	// snapshot.
	ID string `json:"id"`

	// FriendlyName is the human-readable display name.
	FriendlyName string `json:"friendly_name"`

	// Description explains what the bundle does.
	Description string `json:"description"`

	// Version is the bundle's current version. It is compared for
	// equality only, never parsed semantically.
	Version string `json:"version"`

	// Properties is the ordered configuration schema of the instances
	// this bundle operates on.
	Properties []PropertyDef `json:"properties,omitempty"`

	// RecurringJobs are the schedules this bundle asks the host to
	// trigger periodically.
	RecurringJobs []RecurringJob `json:"recurring_jobs,omitempty"`
}

// PropertyDef describes one entry of a bundle's configuration schema.
type PropertyDef struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DefaultValue any    `json:"default_value,omitempty"`
}

// RecurringJob is a bundle-declared schedule. The host registers it with
// the scheduler under the stable identity "{bundleID}.{Name}" so repeated
// registration is idempotent.
type RecurringJob struct {
	// Name identifies the job within the bundle.
	Name string `json:"name"`

	// Schedule is a cron expression (standard 5-field syntax or
	// descriptors like "@every 30s").
	Schedule string `json:"schedule"`

	// Description explains what the job does.
	Description string `json:"description,omitempty"`

	// Params is passed to every execution of the job. A reserved
	// "eventName" key overrides the event name the fan-out engine
	// derives for the job.
	Params map[string]any `json:"params,omitempty"`
}

// Job returns the recurring job with the given name, or false if the
// bundle declares no such job.
func (d Descriptor) Job(name string) (RecurringJob, bool) {
	for _, j := range d.RecurringJobs {
		if j.Name == name {
			return j, true
		}
	}
	return RecurringJob{}, false
}
