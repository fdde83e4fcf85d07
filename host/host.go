// Package host wires the bundle subsystems together: registry, guard,
// fan-out engine, event manager, scheduler, queues, and store. It sits
// above all subsystem packages and below the application layer, which
// keeps the root bundles package (imported by instance, schedule, etc.)
// free of cycles.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/event"
	"github.com/jhosm/ProductBundles-sub000/fanout"
	"github.com/jhosm/ProductBundles-sub000/guard"
	"github.com/jhosm/ProductBundles-sub000/hook"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
	mw "github.com/jhosm/ProductBundles-sub000/middleware"
	"github.com/jhosm/ProductBundles-sub000/observability"
	"github.com/jhosm/ProductBundles-sub000/queue"
	"github.com/jhosm/ProductBundles-sub000/schedule"
	"github.com/jhosm/ProductBundles-sub000/store"
)

// Host owns a fully wired bundle runtime. Create one with New(), then
// LoadBundles, Start, and eventually Stop.
type Host struct {
	cfg    bundles.Config
	logger *slog.Logger
	store  store.Store

	registry  *bundle.Registry
	hooks     *hook.Registry
	guard     *guard.Executor
	engine    *fanout.Engine
	events    *event.Manager
	queues    *queue.Manager
	scheduler *schedule.Scheduler

	// Collected by options, consumed once during New.
	mws          []mw.Middleware
	queueConfigs []queue.Config
	factories    []bundle.Factory
	extraHooks   []hook.Hook

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	started bool
}

// Option configures a Host.
type Option func(*Host) error

// WithConfig replaces the default configuration.
func WithConfig(cfg bundles.Config) Option {
	return func(h *Host) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		h.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger shared by all subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) error {
		if logger != nil {
			h.logger = logger
		}
		return nil
	}
}

// WithHook registers a lifecycle hook with the host.
func WithHook(hk hook.Hook) Option {
	return func(h *Host) error {
		h.extraHooks = append(h.extraHooks, hk)
		return nil
	}
}

// WithMiddleware appends middleware to the invocation chain, after the
// built-in recover/tracing/metrics/logging stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(h *Host) error {
		h.mws = append(h.mws, m)
		return nil
	}
}

// WithQueueConfig registers queue-level concurrency and rate limits.
// Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(h *Host) error {
		h.queueConfigs = append(h.queueConfigs, configs...)
		return nil
	}
}

// WithBundleFactory registers a compile-time bundle factory. Factories
// are constructed during LoadBundles, before the bundles directory is
// scanned.
func WithBundleFactory(f bundle.Factory) Option {
	return func(h *Host) error {
		h.factories = append(h.factories, f)
		return nil
	}
}

// WithPageSize overrides the fan-out page size.
func WithPageSize(n int) Option {
	return func(h *Host) error {
		h.cfg.PageSize = n
		return nil
	}
}

// WithInvocationTimeout overrides the per-invocation timeout.
func WithInvocationTimeout(d time.Duration) Option {
	return func(h *Host) error {
		h.cfg.InvocationTimeout = d
		return nil
	}
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Host) error {
		h.tracerProvider = tp
		return nil
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, both
// the metrics middleware and the observability hook use this provider
// instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(h *Host) error {
		h.meterProvider = mp
		return nil
	}
}

// New creates a Host around the given store and wires every subsystem.
func New(st store.Store, opts ...Option) (*Host, error) {
	if st == nil {
		return nil, bundles.ErrNoStore
	}

	h := &Host{
		cfg:    bundles.DefaultConfig(),
		logger: slog.Default(),
		store:  st,
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if err := h.cfg.Validate(); err != nil {
		return nil, err
	}

	h.registry = bundle.NewRegistry(h.logger)
	h.hooks = hook.NewRegistry(h.logger)

	// Register the observability metrics hook first, then any
	// caller-provided hooks.
	var obs *observability.MetricsHook
	if h.meterProvider != nil {
		obs = observability.NewMetricsHookWithMeter(h.meterProvider.Meter("github.com/jhosm/ProductBundles-sub000/observability"))
	} else {
		obs = observability.NewMetricsHook()
	}
	h.hooks.Register(obs)
	for _, hk := range h.extraHooks {
		h.hooks.Register(hk)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if h.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(h.tracerProvider.Tracer("github.com/jhosm/ProductBundles-sub000"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if h.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(h.meterProvider.Meter("github.com/jhosm/ProductBundles-sub000"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default invocation stack: recover → tracing → metrics → logging,
	// then caller middleware.
	allMws := make([]mw.Middleware, 0, 4+len(h.mws))
	allMws = append(allMws,
		mw.Recover(h.logger),
		tracingMw,
		metricsMw,
		mw.Logging(h.logger),
	)
	allMws = append(allMws, h.mws...)

	h.guard = guard.New(h.logger,
		guard.WithMiddleware(allMws...),
		guard.WithDefaultTimeout(h.cfg.InvocationTimeout),
	)

	h.engine = fanout.New(h.registry, h.store, h.guard, h.hooks, h.logger,
		fanout.WithPageSize(h.cfg.PageSize),
		fanout.WithInvocationTimeout(h.cfg.InvocationTimeout),
	)

	h.events = event.NewManager(h.logger)
	if err := h.events.RegisterProcessor(h.engine.Processor()); err != nil {
		return nil, err
	}

	h.queues = queue.NewManager(h.queueConfigs...)
	h.scheduler = schedule.NewScheduler(h.store, h.engine, h.queues, h.logger,
		schedule.WithTickInterval(h.cfg.TickInterval),
	)

	return h, nil
}

// LoadBundles constructs all factory-registered bundles, scans the
// configured bundles directory for loadable units, and registers every
// discovered bundle's recurring jobs with the scheduler. It returns the
// descriptors known to the registry afterwards.
//
// Loading the same directory twice registers duplicate bundles; callers
// own load-once discipline.
func (h *Host) LoadBundles(ctx context.Context) ([]bundle.Descriptor, error) {
	for _, f := range h.factories {
		if err := h.registry.Register(f); err != nil {
			return nil, err
		}
	}

	if _, err := h.registry.Load(h.cfg.BundlesDir); err != nil {
		return nil, err
	}

	descs := h.registry.Descriptors()
	for _, desc := range descs {
		h.hooks.EmitBundleLoaded(ctx, desc)
		if err := h.scheduler.RegisterBundle(ctx, desc); err != nil {
			h.logger.Warn("failed to register recurring jobs",
				slog.String("bundle_id", desc.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return descs, nil
}

// Start verifies store connectivity, runs migrations, and starts the
// event sources and the scheduler.
func (h *Host) Start(ctx context.Context) error {
	if h.started {
		return nil
	}
	if err := h.store.Ping(ctx); err != nil {
		return fmt.Errorf("bundles: store ping: %w", err)
	}
	if err := h.store.Migrate(ctx); err != nil {
		return fmt.Errorf("bundles: store migrate: %w", err)
	}
	if err := h.events.StartSources(ctx); err != nil {
		return fmt.Errorf("bundles: start event sources: %w", err)
	}
	if err := h.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("bundles: start scheduler: %w", err)
	}
	h.started = true
	return nil
}

// Stop gracefully shuts the host down: event sources first so no new
// work arrives, then the scheduler, then the shutdown hooks, then the
// store. The configured shutdown timeout bounds the whole sequence.
func (h *Host) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ShutdownTimeout)
	defer cancel()

	h.events.StopSources(ctx)
	if err := h.scheduler.Stop(ctx); err != nil {
		h.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}
	h.hooks.EmitShutdown(ctx)
	h.started = false
	return h.store.Close()
}

// CreateInstance creates and persists a new instance of the given
// bundle, seeded with the descriptor's property defaults.
func (h *Host) CreateInstance(ctx context.Context, bundleID string) (*instance.Instance, error) {
	b, ok := h.registry.Get(bundleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", bundles.ErrBundleNotFound, bundleID)
	}
	desc := b.Descriptor()

	inst := instance.New(desc.ID, desc.Version)
	for _, def := range desc.Properties {
		if def.DefaultValue != nil {
			inst.Properties.Set(def.Name, def.DefaultValue)
		}
	}

	if err := h.store.CreateInstance(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// GetInstance retrieves an instance by ID.
func (h *Host) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	return h.store.GetInstance(ctx, instanceID)
}

// DeleteInstance removes an instance by ID.
func (h *Host) DeleteInstance(ctx context.Context, instanceID id.InstanceID) error {
	return h.store.DeleteInstance(ctx, instanceID)
}

// RaiseEntityEvent fans an entity event out to every registered
// processor. It blocks until processing finishes.
func (h *Host) RaiseEntityEvent(ctx context.Context, evt *event.EntityEvent) {
	h.events.Dispatch(ctx, evt)
}

// ExecuteOne runs a single instance through an event by ID.
func (h *Host) ExecuteOne(ctx context.Context, instanceID id.InstanceID, eventName string) error {
	return h.engine.ExecuteOne(ctx, instanceID, eventName)
}

// ExecuteRecurringJob runs one of a bundle's recurring jobs against all
// of its instances immediately, outside the schedule.
func (h *Host) ExecuteRecurringJob(ctx context.Context, bundleID, jobName string, params map[string]any) (fanout.Result, error) {
	return h.engine.ExecuteRecurringJob(ctx, bundleID, jobName, params)
}

// UpgradeAll migrates every instance of the bundle whose stored version
// differs from the bundle's current version.
func (h *Host) UpgradeAll(ctx context.Context, bundleID string) (fanout.Result, error) {
	return h.engine.UpgradeAll(ctx, bundleID)
}

// RegisterSource registers an event source. Sources registered after
// Start are not started retroactively.
func (h *Host) RegisterSource(s event.Source) error {
	return h.events.RegisterSource(s)
}

// Registry returns the bundle registry.
func (h *Host) Registry() *bundle.Registry { return h.registry }

// Hooks returns the lifecycle hook registry.
func (h *Host) Hooks() *hook.Registry { return h.hooks }

// Engine returns the fan-out engine.
func (h *Host) Engine() *fanout.Engine { return h.engine }

// Events returns the event manager.
func (h *Host) Events() *event.Manager { return h.events }

// Scheduler returns the recurring-job scheduler.
func (h *Host) Scheduler() *schedule.Scheduler { return h.scheduler }

// Queues returns the queue manager.
func (h *Host) Queues() *queue.Manager { return h.queues }

// Store returns the backing store.
func (h *Host) Store() store.Store { return h.store }

// Config returns a copy of the host's configuration.
func (h *Host) Config() bundles.Config { return h.cfg }
