// Package fanout drives the paginated, per-instance application of a
// bundle's logic for entity events, recurring jobs, manual execution,
// and bulk version upgrades.
//
// All four operations share one pattern: resolve the bundle, resolve
// the target instance set, enrich each instance, invoke the bundle
// through the guard, persist the result, and isolate failures so one
// bad instance never aborts the batch.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/event"
	"github.com/jhosm/ProductBundles-sub000/guard"
	"github.com/jhosm/ProductBundles-sub000/hook"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 1000

// EventNameParam is the recurring-job parameter that overrides the
// derived event name.
const EventNameParam = "eventName"

// Result reports the aggregate outcome of one batch operation. Batch
// operations always complete and report counts; per-instance failures
// never abort them.
type Result struct {
	// Attempted is the number of instances the operation invoked the
	// bundle for.
	Attempted int

	// Succeeded is the number of instances transformed and persisted.
	Succeeded int
}

// Failed returns the number of attempted instances that produced no
// persisted result.
func (r Result) Failed() int { return r.Attempted - r.Succeeded }

func (r *Result) merge(other Result) {
	r.Attempted += other.Attempted
	r.Succeeded += other.Succeeded
}

// Engine applies events, recurring jobs, and upgrades across every
// persisted instance bound to a bundle, page by page. It is safe for
// concurrent use; concurrent fan-outs are serialized only by the
// scheduler driving them, never by the engine itself.
type Engine struct {
	registry *bundle.Registry
	store    instance.Store
	guard    *guard.Executor
	hooks    *hook.Registry
	pageSize int
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPageSize sets the page size for instance scans. Values outside
// [1, 1000] are rejected when the first scan validates its page request.
func WithPageSize(n int) Option {
	return func(e *Engine) { e.pageSize = n }
}

// WithInvocationTimeout sets the per-invocation timeout handed to the
// guard.
func WithInvocationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// New creates an Engine over the given collaborators.
func New(registry *bundle.Registry, store instance.Store, g *guard.Executor, hooks *hook.Registry, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		registry: registry,
		store:    store,
		guard:    g,
		hooks:    hooks,
		pageSize: DefaultPageSize,
		timeout:  guard.DefaultTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessEntityEvent fans an entity change event out to every loaded
// bundle: each bundle's full instance set is scanned page by page, each
// instance is enriched with the event context and handed to the bundle
// as "entity.{eventType}", and each returned instance is persisted
// under the original ID.
//
// A failure for one bundle (page fetch included) is logged and does not
// prevent fan-out to the remaining bundles.
func (e *Engine) ProcessEntityEvent(ctx context.Context, evt *event.EntityEvent) (Result, error) {
	if evt == nil {
		return Result{}, fmt.Errorf("fanout: nil entity event")
	}

	e.hooks.EmitEventDispatched(ctx, evt)
	eventName := evt.Name()

	var total Result
	for _, b := range e.registry.Bundles() {
		res, err := e.fanOut(ctx, b, eventName, func(inst *instance.Instance) *instance.Instance {
			return enrichWithEntityEvent(inst, evt)
		})
		total.merge(res)
		if err != nil {
			e.logger.Error("entity event fan-out failed for bundle",
				slog.String("bundle_id", b.Descriptor().ID),
				slog.String("event_name", eventName),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.Info("entity event fan-out completed",
		slog.String("event_name", eventName),
		slog.String("entity_type", evt.EntityType),
		slog.String("entity_id", evt.EntityID),
		slog.Int("attempted", total.Attempted),
		slog.Int("succeeded", total.Succeeded),
	)
	return total, nil
}

// ExecuteRecurringJob runs one of a bundle's declared recurring jobs
// across all of the bundle's instances. The event name is taken from an
// "eventName" parameter override, defaulting to "recurring.{jobName}".
//
// A missing bundle fails the whole operation (it happens before the
// per-instance loop); a missing job definition is logged and produces
// no side effects. A bundle with no persisted instances gets exactly
// one invocation against an ephemeral, never-persisted instance so
// schedule-only bundles still run.
func (e *Engine) ExecuteRecurringJob(ctx context.Context, bundleID, jobName string, params map[string]any) (Result, error) {
	if strings.TrimSpace(bundleID) == "" {
		return Result{}, bundles.ErrEmptyBundleID
	}

	b, ok := e.registry.Get(bundleID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", bundles.ErrBundleNotFound, bundleID)
	}

	desc := b.Descriptor()
	job, ok := desc.Job(jobName)
	if !ok {
		e.logger.Warn("recurring job not declared by bundle",
			slog.String("bundle_id", bundleID),
			slog.String("job_name", jobName),
		)
		return Result{}, nil
	}

	e.hooks.EmitRecurringJobFired(ctx, bundleID, jobName)

	eventName := "recurring." + jobName
	if override, ok := params[EventNameParam].(string); ok && strings.TrimSpace(override) != "" {
		eventName = override
	}

	executedAt := time.Now().UTC()
	enrich := func(inst *instance.Instance) *instance.Instance {
		return enrichWithRecurringJob(inst, job, params, executedAt)
	}

	count, err := e.store.CountInstancesByBundle(ctx, bundleID)
	if err != nil {
		return Result{}, fmt.Errorf("fanout: count instances for bundle %q: %w", bundleID, err)
	}
	if count == 0 {
		return e.invokeEphemeral(ctx, b, eventName, enrich), nil
	}

	res, err := e.fanOut(ctx, b, eventName, enrich)
	if err != nil {
		return res, err
	}

	e.logger.Info("recurring job completed",
		slog.String("bundle_id", bundleID),
		slog.String("job_name", jobName),
		slog.Int("attempted", res.Attempted),
		slog.Int("succeeded", res.Succeeded),
	)
	return res, nil
}

// ExecuteOne applies an event to exactly one instance: fetch, resolve
// the bound bundle, invoke once, persist once. A missing instance or
// bundle is logged and the call returns without side effects; a store
// failure, invocation failure, or persistence failure is returned.
func (e *Engine) ExecuteOne(ctx context.Context, instanceID id.InstanceID, eventName string) error {
	if instanceID.IsNil() {
		return bundles.ErrEmptyInstanceID
	}
	if strings.TrimSpace(eventName) == "" {
		return bundles.ErrEmptyEventName
	}

	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, bundles.ErrInstanceNotFound) {
			e.logger.Warn("instance not found for manual execution",
				slog.String("instance_id", instanceID.String()),
			)
			return nil
		}
		return fmt.Errorf("fanout: fetch instance %s: %w", instanceID, err)
	}

	b, ok := e.registry.Get(inst.BundleID)
	if !ok {
		e.logger.Warn("bundle not found for manual execution",
			slog.String("instance_id", instanceID.String()),
			slog.String("bundle_id", inst.BundleID),
		)
		return nil
	}

	if ok := e.processOne(ctx, b, eventName, inst); !ok {
		return fmt.Errorf("fanout: manual execution failed for instance %s", instanceID)
	}
	return nil
}

// UpgradeAll migrates every instance of a bundle whose recorded version
// differs from the bundle's current version. Version-equal instances
// are skipped with zero calls. Upgrade logic is trusted and invoked
// directly rather than through the guard, but a panicking upgrade is
// still caught so the loop continues.
func (e *Engine) UpgradeAll(ctx context.Context, bundleID string) (Result, error) {
	if strings.TrimSpace(bundleID) == "" {
		return Result{}, bundles.ErrEmptyBundleID
	}

	b, ok := e.registry.Get(bundleID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", bundles.ErrBundleNotFound, bundleID)
	}
	desc := b.Descriptor()

	var res Result
	err := e.forEachPage(ctx, bundleID, func(inst *instance.Instance) {
		if inst.BundleVersion == desc.Version {
			return
		}
		res.Attempted++

		fromVersion := inst.BundleVersion
		upgraded, upgradeErr := e.upgradeOne(ctx, b, inst)
		if upgradeErr != nil {
			e.logger.Warn("instance upgrade failed",
				slog.String("bundle_id", bundleID),
				slog.String("instance_id", inst.ID.String()),
				slog.String("from_version", fromVersion),
				slog.String("to_version", desc.Version),
				slog.String("error", upgradeErr.Error()),
			)
			return
		}

		upgraded.ID = inst.ID
		upgraded.BundleVersion = desc.Version
		if updateErr := e.store.UpdateInstance(ctx, upgraded); updateErr != nil {
			e.logger.Warn("failed to persist upgraded instance",
				slog.String("bundle_id", bundleID),
				slog.String("instance_id", inst.ID.String()),
				slog.String("error", updateErr.Error()),
			)
			return
		}

		res.Succeeded++
		e.hooks.EmitInstanceUpgraded(ctx, bundleID, fromVersion, desc.Version, inst.ID)
	})
	if err != nil {
		return res, err
	}

	e.logger.Info("bulk upgrade completed",
		slog.String("bundle_id", bundleID),
		slog.String("version", desc.Version),
		slog.Int("attempted", res.Attempted),
		slog.Int("succeeded", res.Succeeded),
	)
	return res, nil
}

// upgradeOne invokes the trusted upgrade operation, converting a panic
// into an error.
func (e *Engine) upgradeOne(ctx context.Context, b bundle.Bundle, inst *instance.Instance) (result *instance.Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic during upgrade: %v", r)
		}
	}()

	result, err = b.Upgrade(ctx, inst)
	if err == nil && result == nil {
		err = fmt.Errorf("upgrade returned no result")
	}
	return result, err
}

// fanOut pages through all instances bound to b and processes each.
// Per-instance failures are isolated; only page-fetch failures abort
// the scan.
func (e *Engine) fanOut(ctx context.Context, b bundle.Bundle, eventName string, enrich func(*instance.Instance) *instance.Instance) (Result, error) {
	var res Result
	err := e.forEachPage(ctx, b.Descriptor().ID, func(inst *instance.Instance) {
		res.Attempted++
		if ok := e.processOne(ctx, b, eventName, enrich(inst)); ok {
			res.Succeeded++
		}
	})
	return res, err
}

// processOne invokes the bundle through the guard for one enriched
// instance and persists the result under the original ID. Returns
// whether a result was produced and persisted.
func (e *Engine) processOne(ctx context.Context, b bundle.Bundle, eventName string, inst *instance.Instance) bool {
	bundleID := b.Descriptor().ID
	start := time.Now()

	result, err := e.guard.HandleEvent(ctx, b, eventName, inst, e.timeout)
	if err != nil {
		e.logger.Warn("bundle invocation yielded no result",
			slog.String("bundle_id", bundleID),
			slog.String("event_name", eventName),
			slog.String("instance_id", inst.ID.String()),
			slog.String("error", err.Error()),
		)
		e.hooks.EmitInstanceFailed(ctx, bundleID, eventName, inst.ID, err)
		return false
	}

	// The instance ID never changes across an update; persist the
	// bundle's result under the original identity no matter what it
	// returned.
	result.ID = inst.ID
	if err := e.store.UpdateInstance(ctx, result); err != nil {
		e.logger.Warn("failed to persist processed instance",
			slog.String("bundle_id", bundleID),
			slog.String("event_name", eventName),
			slog.String("instance_id", inst.ID.String()),
			slog.String("error", err.Error()),
		)
		e.hooks.EmitInstanceFailed(ctx, bundleID, eventName, inst.ID, err)
		return false
	}

	e.hooks.EmitInstanceProcessed(ctx, bundleID, eventName, result, time.Since(start))
	return true
}

// invokeEphemeral runs one invocation against a fresh instance that is
// never persisted. Used for recurring jobs on bundles without any
// persisted instances.
func (e *Engine) invokeEphemeral(ctx context.Context, b bundle.Bundle, eventName string, enrich func(*instance.Instance) *instance.Instance) Result {
	desc := b.Descriptor()
	inst := enrich(instance.New(desc.ID, desc.Version))

	res := Result{Attempted: 1}
	if _, err := e.guard.HandleEvent(ctx, b, eventName, inst, e.timeout); err != nil {
		e.logger.Warn("ephemeral invocation yielded no result",
			slog.String("bundle_id", desc.ID),
			slog.String("event_name", eventName),
			slog.String("error", err.Error()),
		)
		e.hooks.EmitInstanceFailed(ctx, desc.ID, eventName, inst.ID, err)
		return res
	}

	res.Succeeded = 1
	return res
}

// forEachPage scans all instances bound to bundleID page by page,
// calling fn for each instance. The scan ends when a page comes back
// empty, so a scan over N instances with page size P issues ⌈N/P⌉+1
// fetches. Page order is the store's natural iteration order; nothing
// is guaranteed under concurrent mutation.
func (e *Engine) forEachPage(ctx context.Context, bundleID string, fn func(*instance.Instance)) error {
	req := instance.PageRequest{Number: 1, Size: e.pageSize}
	if err := req.Validate(); err != nil {
		return err
	}

	for {
		page, err := e.store.ListInstancesByBundle(ctx, bundleID, req)
		if err != nil {
			return fmt.Errorf("fanout: fetch page %d for bundle %q: %w", req.Number, bundleID, err)
		}

		for _, inst := range page.Items {
			fn(inst)
		}

		if len(page.Items) == 0 {
			return nil
		}
		req.Number++
	}
}
