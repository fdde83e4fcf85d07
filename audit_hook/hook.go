package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/event"
	"github.com/jhosm/ProductBundles-sub000/hook"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

// Compile-time interface checks.
var (
	_ hook.Hook              = (*Hook)(nil)
	_ hook.InstanceProcessed = (*Hook)(nil)
	_ hook.InstanceFailed    = (*Hook)(nil)
	_ hook.InstanceUpgraded  = (*Hook)(nil)
	_ hook.BundleLoaded      = (*Hook)(nil)
	_ hook.EventDispatched   = (*Hook)(nil)
	_ hook.RecurringJobFired = (*Hook)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so that this package carries no backend dependency —
// callers inject the concrete writer at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Hook bridges bundle lifecycle events to an audit trail backend. Each
// lifecycle event emits a structured audit event through the [Recorder].
type Hook struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates a Hook that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Hook {
	h := &Hook{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements hook.Hook.
func (h *Hook) Name() string { return "audit-hook" }

// OnInstanceProcessed implements hook.InstanceProcessed.
func (h *Hook) OnInstanceProcessed(ctx context.Context, bundleID, eventName string, inst *instance.Instance, elapsed time.Duration) error {
	var instanceID string
	if inst != nil {
		instanceID = inst.ID.String()
	}
	return h.record(ctx, ActionInstanceProcessed, SeverityInfo, OutcomeSuccess,
		ResourceInstance, instanceID, CategoryInstance, nil,
		"bundle_id", bundleID,
		"event_name", eventName,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnInstanceFailed implements hook.InstanceFailed.
func (h *Hook) OnInstanceFailed(ctx context.Context, bundleID, eventName string, instanceID id.InstanceID, failure error) error {
	return h.record(ctx, ActionInstanceFailed, SeverityCritical, OutcomeFailure,
		ResourceInstance, instanceID.String(), CategoryInstance, failure,
		"bundle_id", bundleID,
		"event_name", eventName,
	)
}

// OnInstanceUpgraded implements hook.InstanceUpgraded.
func (h *Hook) OnInstanceUpgraded(ctx context.Context, bundleID, fromVersion, toVersion string, instanceID id.InstanceID) error {
	return h.record(ctx, ActionInstanceUpgraded, SeverityInfo, OutcomeSuccess,
		ResourceInstance, instanceID.String(), CategoryInstance, nil,
		"bundle_id", bundleID,
		"from_version", fromVersion,
		"to_version", toVersion,
	)
}

// OnBundleLoaded implements hook.BundleLoaded.
func (h *Hook) OnBundleLoaded(ctx context.Context, desc bundle.Descriptor) error {
	return h.record(ctx, ActionBundleLoaded, SeverityInfo, OutcomeSuccess,
		ResourceBundle, desc.ID, CategoryBundle, nil,
		"version", desc.Version,
		"friendly_name", desc.FriendlyName,
	)
}

// OnEventDispatched implements hook.EventDispatched.
func (h *Hook) OnEventDispatched(ctx context.Context, evt *event.EntityEvent) error {
	return h.record(ctx, ActionEventDispatched, SeverityInfo, OutcomeSuccess,
		ResourceEvent, evt.EntityID, CategoryEvent, nil,
		"entity_type", evt.EntityType,
		"event_type", string(evt.EventType),
		"event_name", evt.Name(),
	)
}

// OnRecurringJobFired implements hook.RecurringJobFired.
func (h *Hook) OnRecurringJobFired(ctx context.Context, bundleID, jobName string) error {
	return h.record(ctx, ActionRecurringJobFired, SeverityInfo, OutcomeSuccess,
		ResourceJob, bundleID+"."+jobName, CategorySchedule, nil,
		"bundle_id", bundleID,
		"job_name", jobName,
	)
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (h *Hook) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if h.enabled != nil && !h.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := h.recorder.Record(ctx, evt); recErr != nil {
		h.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
