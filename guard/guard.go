// Package guard bounds a single bundle invocation in time and isolates
// its failure from the caller. Bundle logic is third-party and may hang,
// panic, or misbehave; the fan-out engine only ever invokes it through
// this package.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/instance"
	"github.com/jhosm/ProductBundles-sub000/middleware"
)

// DefaultTimeout bounds invocations when the caller passes no explicit
// timeout.
const DefaultTimeout = 30 * time.Second

// Executor runs bundle invocations through a middleware chain inside a
// bounded-time execution slot. It is safe for concurrent use.
type Executor struct {
	chain          middleware.Middleware
	defaultTimeout time.Duration
	logger         *slog.Logger

	// extraMws is only populated between option application and chain
	// construction in New.
	extraMws []middleware.Middleware
}

// Option configures an Executor.
type Option func(*Executor)

// WithMiddleware appends middleware to the invocation chain. The chain
// always starts with panic recovery regardless of extras.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Executor) {
		e.extraMws = append(e.extraMws, mws...)
	}
}

// WithDefaultTimeout sets the timeout used when the caller passes a
// non-positive one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// outcome carries one invocation result across the slot boundary.
type outcome struct {
	result *instance.Instance
	err    error
}

// New creates an Executor. Panic recovery is always the outermost
// middleware so a panicking bundle surfaces as an error, never as a
// crashed goroutine.
func New(logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		defaultTimeout: DefaultTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	mws := make([]middleware.Middleware, 0, len(e.extraMws)+1)
	mws = append(mws, middleware.Recover(logger))
	mws = append(mws, e.extraMws...)
	e.chain = middleware.Chain(mws...)
	e.extraMws = nil
	return e
}

// HandleEvent dispatches one bundle invocation to a bounded-time
// execution slot.
//
// Preconditions (nil bundle or instance, empty event name) fail
// immediately and are never swallowed. Otherwise:
//   - completion within timeout returns the bundle's result, or its
//     fault as an error;
//   - missing the timeout abandons the slot and returns
//     bundles.ErrInvocationTimeout. The underlying invocation is not
//     forcibly terminated — its context is cancelled so cooperative
//     bundles can stop, but a hostile one keeps its goroutine until it
//     returns on its own.
//
// A timeout and a fault are indistinguishable to the fan-out engine:
// both mean "no result, continue with the next instance".
func (e *Executor) HandleEvent(ctx context.Context, b bundle.Bundle, eventName string, inst *instance.Instance, timeout time.Duration) (*instance.Instance, error) {
	if b == nil {
		return nil, bundles.ErrNilBundle
	}
	if inst == nil {
		return nil, bundles.ErrNilInstance
	}
	if strings.TrimSpace(eventName) == "" {
		return nil, bundles.ErrEmptyEventName
	}
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	desc := b.Descriptor()
	inv := &middleware.Invocation{
		BundleID:      desc.ID,
		BundleVersion: desc.Version,
		EventName:     eventName,
		InstanceID:    inst.ID.String(),
	}

	slotCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so the slot goroutine can always deliver and exit, even
	// after the caller has given up waiting.
	done := make(chan outcome, 1)
	go func() {
		result, err := e.chain(slotCtx, inv, func(c context.Context) (*instance.Instance, error) {
			return b.HandleEvent(c, eventName, inst)
		})
		if err == nil && result == nil {
			err = fmt.Errorf("bundle %s returned no result for %s", desc.ID, eventName)
		}
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	case <-slotCtx.Done():
		e.logger.Warn("bundle invocation abandoned",
			slog.String("bundle_id", desc.ID),
			slog.String("event_name", eventName),
			slog.String("instance_id", inv.InstanceID),
			slog.Duration("timeout", timeout),
		)
		return nil, fmt.Errorf("%w: bundle %s handling %s after %s",
			bundles.ErrInvocationTimeout, desc.ID, eventName, timeout)
	}
}
