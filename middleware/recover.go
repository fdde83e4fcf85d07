package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/jhosm/ProductBundles-sub000/instance"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) (result *instance.Instance, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("bundle invocation panicked",
					slog.String("bundle_id", inv.BundleID),
					slog.String("event_name", inv.EventName),
					slog.String("instance_id", inv.InstanceID),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				result = nil
				retErr = fmt.Errorf("panic in bundle %s handling %s: %v", inv.BundleID, inv.EventName, r)
			}
		}()
		return next(ctx)
	}
}
