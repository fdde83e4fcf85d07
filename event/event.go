// Package event defines entity change events and the manager that
// routes them from registered producers to registered processors
// (typically the fan-out engine).
package event

import (
	"time"

	"github.com/jhosm/ProductBundles-sub000/id"
)

// ChangeType classifies an entity change.
type ChangeType string

const (
	// ChangeCreated means the entity was created.
	ChangeCreated ChangeType = "created"
	// ChangeUpdated means the entity was updated.
	ChangeUpdated ChangeType = "updated"
	// ChangeDeleted means the entity was deleted.
	ChangeDeleted ChangeType = "deleted"
)

// EntityEvent is an external notification that some business entity was
// created, updated, or deleted. Events are transient — the host never
// persists them; each one is consumed once per dispatch.
type EntityEvent struct {
	ID         id.EventID     `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	EventType  ChangeType     `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	EntityData map[string]any `json:"entity_data,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewEntityEvent builds an EntityEvent stamped with the current UTC time.
func NewEntityEvent(entityType, entityID string, eventType ChangeType) *EntityEvent {
	return &EntityEvent{
		ID:         id.NewEventID(),
		EntityType: entityType,
		EntityID:   entityID,
		EventType:  eventType,
		Timestamp:  time.Now().UTC(),
		EntityData: make(map[string]any),
		Metadata:   make(map[string]any),
	}
}

// Name returns the event name the fan-out engine derives for this
// change: "entity.{eventType}".
func (e *EntityEvent) Name() string {
	return "entity." + string(e.EventType)
}
