// Package instance defines the persisted data record a bundle operates
// on, its ordered property map, and the pagination and store contracts
// used by the fan-out engine.
package instance

import (
	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
)

// Instance is a persisted data record bound to a bundle. The fan-out
// engine reads it, enriches a copy, hands the copy to the bundle, and
// persists whatever the bundle returns under the same ID.
//
// An Instance's ID never changes across updates. BundleVersion records
// the last bundle version that touched the instance and is compared for
// equality only.
type Instance struct {
	bundles.Entity

	ID            id.InstanceID `json:"id"`
	BundleID      string        `json:"bundle_id"`
	BundleVersion string        `json:"bundle_version"`
	Properties    *Properties   `json:"properties"`
}

// New creates an Instance bound to the given bundle with a freshly
// generated ID and an empty property map.
func New(bundleID, bundleVersion string) *Instance {
	return &Instance{
		Entity:        bundles.NewEntity(),
		ID:            id.NewInstanceID(),
		BundleID:      bundleID,
		BundleVersion: bundleVersion,
		Properties:    NewProperties(),
	}
}

// Clone returns a deep copy sharing the same ID. The engine never
// mutates an instance in place when producing a result; it clones,
// modifies the clone, and persists the clone under the original ID.
func (i *Instance) Clone() *Instance {
	cp := *i
	cp.Properties = i.Properties.Clone()
	return &cp
}
