package instance

import (
	"context"

	"github.com/jhosm/ProductBundles-sub000/id"
)

// Store is the persistence contract for instances. Implementations must
// guarantee atomic create/update/delete per instance; the engine assumes
// no application-level locking across its read-enrich-write sequence, so
// a concurrent external update to the same instance may be overwritten
// (last writer wins).
//
// ListInstancesByBundle must validate the page request and return pages
// in the backend's natural iteration order; that order is stable within
// a scan only in the absence of concurrent mutation.
type Store interface {
	// CreateInstance persists a new instance.
	// Returns bundles.ErrInstanceExists if the ID is already present.
	CreateInstance(ctx context.Context, inst *Instance) error

	// GetInstance retrieves an instance by ID.
	// Returns bundles.ErrInstanceNotFound if absent.
	GetInstance(ctx context.Context, instanceID id.InstanceID) (*Instance, error)

	// UpdateInstance persists changes to an existing instance.
	// Returns bundles.ErrInstanceNotFound if absent.
	UpdateInstance(ctx context.Context, inst *Instance) error

	// DeleteInstance removes an instance by ID.
	// Returns bundles.ErrInstanceNotFound if absent.
	DeleteInstance(ctx context.Context, instanceID id.InstanceID) error

	// InstanceExists reports whether an instance with the given ID exists.
	InstanceExists(ctx context.Context, instanceID id.InstanceID) (bool, error)

	// ListInstancesByBundle returns one page of the instances bound to
	// the given bundle.
	ListInstancesByBundle(ctx context.Context, bundleID string, req PageRequest) (*Page, error)

	// CountInstances returns the total number of persisted instances.
	CountInstances(ctx context.Context) (int, error)

	// CountInstancesByBundle returns the number of instances bound to
	// the given bundle.
	CountInstancesByBundle(ctx context.Context, bundleID string) (int, error)
}
