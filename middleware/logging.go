package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/jhosm/ProductBundles-sub000/instance"
)

// Logging returns middleware that logs invocation start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) (*instance.Instance, error) {
		logger.Debug("bundle invocation started",
			slog.String("bundle_id", inv.BundleID),
			slog.String("event_name", inv.EventName),
			slog.String("instance_id", inv.InstanceID),
		)

		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("bundle invocation failed",
				slog.String("bundle_id", inv.BundleID),
				slog.String("event_name", inv.EventName),
				slog.String("instance_id", inv.InstanceID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("bundle invocation completed",
				slog.String("bundle_id", inv.BundleID),
				slog.String("event_name", inv.EventName),
				slog.String("instance_id", inv.InstanceID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return result, err
	}
}
