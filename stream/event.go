// Package stream provides a real-time broker for bundle lifecycle
// events. It bridges the hook system to connected clients via
// topic-based pub/sub with credit-based flow control.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Instance events.
	EventInstanceProcessed EventType = "instance.processed"
	EventInstanceFailed    EventType = "instance.failed"
	EventInstanceUpgraded  EventType = "instance.upgraded"

	// Bundle events.
	EventBundleLoaded EventType = "bundle.loaded"

	// Entity change and schedule events.
	EventDispatched        EventType = "event.dispatched"
	EventRecurringJobFired EventType = "recurring_job.fired"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity-specific channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// InstanceEventData is the payload for instance lifecycle events.
type InstanceEventData struct {
	InstanceID  string `json:"instance_id"`
	BundleID    string `json:"bundle_id"`
	EventName   string `json:"event_name,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	Error       string `json:"error,omitempty"`
	FromVersion string `json:"from_version,omitempty"`
	ToVersion   string `json:"to_version,omitempty"`
}

// BundleEventData is the payload for bundle lifecycle events.
type BundleEventData struct {
	BundleID     string `json:"bundle_id"`
	FriendlyName string `json:"friendly_name,omitempty"`
	Version      string `json:"version"`
}

// EntityEventData is the payload for entity change events.
type EntityEventData struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	EventType  string `json:"event_type"`
	EventName  string `json:"event_name"`
}

// RecurringJobEventData is the payload for recurring job events.
type RecurringJobEventData struct {
	BundleID string `json:"bundle_id"`
	JobName  string `json:"job_name"`
}
