// Package middleware provides composable middleware for bundle
// invocations. Middleware wraps a single HandleEvent call synchronously
// and can modify execution (recover from panics, log, record metrics,
// add tracing, etc.).
package middleware

import (
	"context"

	"github.com/jhosm/ProductBundles-sub000/instance"
)

// Invocation describes one bundle invocation flowing through the chain.
type Invocation struct {
	// BundleID identifies the bundle being invoked.
	BundleID string

	// BundleVersion is the bundle's current version.
	BundleVersion string

	// EventName is the event being handled.
	EventName string

	// InstanceID is the string form of the instance being processed.
	InstanceID string
}

// Handler is the terminal function that executes the bundle logic and
// produces the transformed instance.
type Handler func(ctx context.Context) (*instance.Instance, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the invocation being executed, and the next handler
// to call. Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, inv *Invocation, next Handler) (*instance.Instance, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, metrics) executes as:
//
//	logging → recover → metrics → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) (*instance.Instance, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (*instance.Instance, error) {
				return mw(ctx, inv, prev)
			}
		}
		return h(ctx)
	}
}
