package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jhosm/ProductBundles-sub000/instance"
)

// meterName is the instrumentation scope name for invocation metrics.
const meterName = "github.com/jhosm/ProductBundles-sub000"

// Metrics returns middleware that records per-invocation metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - bundles.invocation.duration (Float64Histogram): execution time in
//     seconds, with attributes: bundle_id, event_name, status ("ok" or
//     "error")
//   - bundles.invocation.total (Int64Counter): total invocations, with
//     attributes: bundle_id, event_name, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"bundles.invocation.duration",
		metric.WithDescription("Duration of bundle invocations in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	total, tErr := meter.Int64Counter(
		"bundles.invocation.total",
		metric.WithDescription("Total number of bundle invocations"),
		metric.WithUnit("{invocation}"),
	)
	_ = tErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, inv *Invocation, next Handler) (*instance.Instance, error) {
		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("bundle_id", inv.BundleID),
			attribute.String("event_name", inv.EventName),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		total.Add(ctx, 1, attrs)

		return result, err
	}
}
