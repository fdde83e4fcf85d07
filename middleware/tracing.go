package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhosm/ProductBundles-sub000/instance"
)

// tracerName is the instrumentation scope name for invocation tracing.
const tracerName = "github.com/jhosm/ProductBundles-sub000"

// Tracing returns middleware that wraps a bundle invocation in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: bundles.bundle_id, bundles.bundle_version,
// bundles.event_name, bundles.instance_id. On error, the span status is
// set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) (*instance.Instance, error) {
		ctx, span := tracer.Start(ctx, "bundles.invocation",
			trace.WithAttributes(
				attribute.String("bundles.bundle_id", inv.BundleID),
				attribute.String("bundles.bundle_version", inv.BundleVersion),
				attribute.String("bundles.event_name", inv.EventName),
				attribute.String("bundles.instance_id", inv.InstanceID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		result, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return result, err
	}
}
