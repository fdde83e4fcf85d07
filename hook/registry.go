package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/event"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

// Named entry types pair a hook implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type instanceProcessedEntry struct {
	name string
	hook InstanceProcessed
}

type instanceFailedEntry struct {
	name string
	hook InstanceFailed
}

type instanceUpgradedEntry struct {
	name string
	hook InstanceUpgraded
}

type bundleLoadedEntry struct {
	name string
	hook BundleLoaded
}

type eventDispatchedEntry struct {
	name string
	hook EventDispatched
}

type recurringJobFiredEntry struct {
	name string
	hook RecurringJobFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls iterate
// only over hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	// Type-cached slices for each lifecycle event.
	instanceProcessed []instanceProcessedEntry
	instanceFailed    []instanceFailedEntry
	instanceUpgraded  []instanceUpgradedEntry
	bundleLoaded      []bundleLoadedEntry
	eventDispatched   []eventDispatchedEntry
	recurringJobFired []recurringJobFiredEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable caches.
// Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if v, ok := h.(InstanceProcessed); ok {
		r.instanceProcessed = append(r.instanceProcessed, instanceProcessedEntry{name, v})
	}
	if v, ok := h.(InstanceFailed); ok {
		r.instanceFailed = append(r.instanceFailed, instanceFailedEntry{name, v})
	}
	if v, ok := h.(InstanceUpgraded); ok {
		r.instanceUpgraded = append(r.instanceUpgraded, instanceUpgradedEntry{name, v})
	}
	if v, ok := h.(BundleLoaded); ok {
		r.bundleLoaded = append(r.bundleLoaded, bundleLoadedEntry{name, v})
	}
	if v, ok := h.(EventDispatched); ok {
		r.eventDispatched = append(r.eventDispatched, eventDispatchedEntry{name, v})
	}
	if v, ok := h.(RecurringJobFired); ok {
		r.recurringJobFired = append(r.recurringJobFired, recurringJobFiredEntry{name, v})
	}
	if v, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, v})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// EmitInstanceProcessed notifies all hooks that implement InstanceProcessed.
func (r *Registry) EmitInstanceProcessed(ctx context.Context, bundleID, eventName string, inst *instance.Instance, elapsed time.Duration) {
	for _, e := range r.instanceProcessed {
		if err := e.hook.OnInstanceProcessed(ctx, bundleID, eventName, inst, elapsed); err != nil {
			r.logHookError("OnInstanceProcessed", e.name, err)
		}
	}
}

// EmitInstanceFailed notifies all hooks that implement InstanceFailed.
func (r *Registry) EmitInstanceFailed(ctx context.Context, bundleID, eventName string, instanceID id.InstanceID, failure error) {
	for _, e := range r.instanceFailed {
		if err := e.hook.OnInstanceFailed(ctx, bundleID, eventName, instanceID, failure); err != nil {
			r.logHookError("OnInstanceFailed", e.name, err)
		}
	}
}

// EmitInstanceUpgraded notifies all hooks that implement InstanceUpgraded.
func (r *Registry) EmitInstanceUpgraded(ctx context.Context, bundleID, fromVersion, toVersion string, instanceID id.InstanceID) {
	for _, e := range r.instanceUpgraded {
		if err := e.hook.OnInstanceUpgraded(ctx, bundleID, fromVersion, toVersion, instanceID); err != nil {
			r.logHookError("OnInstanceUpgraded", e.name, err)
		}
	}
}

// EmitBundleLoaded notifies all hooks that implement BundleLoaded.
func (r *Registry) EmitBundleLoaded(ctx context.Context, desc bundle.Descriptor) {
	for _, e := range r.bundleLoaded {
		if err := e.hook.OnBundleLoaded(ctx, desc); err != nil {
			r.logHookError("OnBundleLoaded", e.name, err)
		}
	}
}

// EmitEventDispatched notifies all hooks that implement EventDispatched.
func (r *Registry) EmitEventDispatched(ctx context.Context, evt *event.EntityEvent) {
	for _, e := range r.eventDispatched {
		if err := e.hook.OnEventDispatched(ctx, evt); err != nil {
			r.logHookError("OnEventDispatched", e.name, err)
		}
	}
}

// EmitRecurringJobFired notifies all hooks that implement RecurringJobFired.
func (r *Registry) EmitRecurringJobFired(ctx context.Context, bundleID, jobName string) {
	for _, e := range r.recurringJobFired {
		if err := e.hook.OnRecurringJobFired(ctx, bundleID, jobName); err != nil {
			r.logHookError("OnRecurringJobFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the
// fan-out pipeline.
func (r *Registry) logHookError(hookEvent, hookName string, err error) {
	r.logger.Warn("lifecycle hook error",
		slog.String("event", hookEvent),
		slog.String("hook", hookName),
		slog.String("error", err.Error()),
	)
}
