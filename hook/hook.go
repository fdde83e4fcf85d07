// Package hook defines the lifecycle hook system for the bundle host.
// Hooks are notified of lifecycle events (bundle loaded, instance
// processed, instance failed, recurring job fired, etc.) and can react
// to them — logging, metrics, tracing, etc.
//
// Each lifecycle event is a separate interface so hooks opt in only to
// the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/event"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Fan-out lifecycle
// ──────────────────────────────────────────────────

// InstanceProcessed is called after an instance was successfully
// transformed and persisted.
type InstanceProcessed interface {
	OnInstanceProcessed(ctx context.Context, bundleID, eventName string, inst *instance.Instance, elapsed time.Duration) error
}

// InstanceFailed is called when an invocation for an instance fails
// (fault or timeout) and the fan-out loop moves on.
type InstanceFailed interface {
	OnInstanceFailed(ctx context.Context, bundleID, eventName string, instanceID id.InstanceID, err error) error
}

// InstanceUpgraded is called after a bulk upgrade rewrote one instance
// to the bundle's current version.
type InstanceUpgraded interface {
	OnInstanceUpgraded(ctx context.Context, bundleID, fromVersion, toVersion string, instanceID id.InstanceID) error
}

// ──────────────────────────────────────────────────
// Host lifecycle
// ──────────────────────────────────────────────────

// BundleLoaded is called after a bundle is constructed and registered.
type BundleLoaded interface {
	OnBundleLoaded(ctx context.Context, desc bundle.Descriptor) error
}

// EventDispatched is called when an entity change event enters the
// fan-out engine.
type EventDispatched interface {
	OnEventDispatched(ctx context.Context, evt *event.EntityEvent) error
}

// RecurringJobFired is called when the scheduler triggers a recurring
// job execution.
type RecurringJobFired interface {
	OnRecurringJobFired(ctx context.Context, bundleID, jobName string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
