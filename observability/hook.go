// Package observability provides an OpenTelemetry-based lifecycle hook
// recording system-wide counters for instance processing, failures,
// upgrades, bundle loads, event dispatch, and recurring job fires.
//
// For per-invocation metrics and tracing, see the middleware package:
// middleware.Metrics() and middleware.Tracing().
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/event"
	"github.com/jhosm/ProductBundles-sub000/hook"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

const meterName = "github.com/jhosm/ProductBundles-sub000/observability"

// Compile-time interface checks.
var (
	_ hook.Hook              = (*MetricsHook)(nil)
	_ hook.InstanceProcessed = (*MetricsHook)(nil)
	_ hook.InstanceFailed    = (*MetricsHook)(nil)
	_ hook.InstanceUpgraded  = (*MetricsHook)(nil)
	_ hook.BundleLoaded      = (*MetricsHook)(nil)
	_ hook.EventDispatched   = (*MetricsHook)(nil)
	_ hook.RecurringJobFired = (*MetricsHook)(nil)
)

// MetricsHook records lifecycle counters and a processing-duration
// histogram. Register it on the host to track throughput, failure
// rates, upgrades, and job fires across all bundles.
type MetricsHook struct {
	processed   metric.Int64Counter
	failed      metric.Int64Counter
	upgraded    metric.Int64Counter
	loaded      metric.Int64Counter
	dispatched  metric.Int64Counter
	jobsFired   metric.Int64Counter
	processTime metric.Float64Histogram
}

// NewMetricsHook creates a MetricsHook using the global meter provider.
func NewMetricsHook() *MetricsHook {
	return NewMetricsHookWithMeter(otel.GetMeterProvider().Meter(meterName))
}

// NewMetricsHookWithMeter creates a MetricsHook recording on the
// provided meter.
func NewMetricsHookWithMeter(meter metric.Meter) *MetricsHook {
	processed, _ := meter.Int64Counter("bundles.instances.processed",
		metric.WithDescription("Instances transformed and persisted"))
	failed, _ := meter.Int64Counter("bundles.instances.failed",
		metric.WithDescription("Instances that produced no persisted result"))
	upgraded, _ := meter.Int64Counter("bundles.instances.upgraded",
		metric.WithDescription("Instances migrated to a new bundle version"))
	loaded, _ := meter.Int64Counter("bundles.bundles.loaded",
		metric.WithDescription("Bundles registered with the host"))
	dispatched, _ := meter.Int64Counter("bundles.events.dispatched",
		metric.WithDescription("Entity change events fanned out"))
	jobsFired, _ := meter.Int64Counter("bundles.recurring_jobs.fired",
		metric.WithDescription("Recurring job executions"))
	processTime, _ := meter.Float64Histogram("bundles.instances.process_duration",
		metric.WithDescription("Per-instance processing duration"),
		metric.WithUnit("s"))

	return &MetricsHook{
		processed:   processed,
		failed:      failed,
		upgraded:    upgraded,
		loaded:      loaded,
		dispatched:  dispatched,
		jobsFired:   jobsFired,
		processTime: processTime,
	}
}

// Name implements hook.Hook.
func (m *MetricsHook) Name() string { return "observability-metrics" }

// OnInstanceProcessed records a success and the processing duration.
func (m *MetricsHook) OnInstanceProcessed(ctx context.Context, bundleID, eventName string, _ *instance.Instance, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("bundle_id", bundleID),
		attribute.String("event_name", eventName),
	)
	m.processed.Add(ctx, 1, attrs)
	m.processTime.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnInstanceFailed records a per-instance failure.
func (m *MetricsHook) OnInstanceFailed(ctx context.Context, bundleID, eventName string, _ id.InstanceID, _ error) error {
	m.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bundle_id", bundleID),
		attribute.String("event_name", eventName),
	))
	return nil
}

// OnInstanceUpgraded records a version migration.
func (m *MetricsHook) OnInstanceUpgraded(ctx context.Context, bundleID, fromVersion, toVersion string, _ id.InstanceID) error {
	m.upgraded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bundle_id", bundleID),
		attribute.String("from_version", fromVersion),
		attribute.String("to_version", toVersion),
	))
	return nil
}

// OnBundleLoaded records a bundle registration.
func (m *MetricsHook) OnBundleLoaded(ctx context.Context, desc bundle.Descriptor) error {
	m.loaded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bundle_id", desc.ID),
		attribute.String("version", desc.Version),
	))
	return nil
}

// OnEventDispatched records an entity event fan-out.
func (m *MetricsHook) OnEventDispatched(ctx context.Context, evt *event.EntityEvent) error {
	m.dispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", evt.EntityType),
		attribute.String("event_type", string(evt.EventType)),
	))
	return nil
}

// OnRecurringJobFired records a recurring job execution.
func (m *MetricsHook) OnRecurringJobFired(ctx context.Context, bundleID, jobName string) error {
	m.jobsFired.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bundle_id", bundleID),
		attribute.String("job_name", jobName),
	))
	return nil
}
