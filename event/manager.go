package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// RaiseFunc is handed to a Source so it can push entity change events
// into the manager.
type RaiseFunc func(ctx context.Context, evt *EntityEvent)

// Source is an external change producer with a start/stop lifecycle.
// While started, it raises entity change events through the RaiseFunc it
// was given. Raising while stopped is the source's own precondition
// violation, not the manager's concern.
type Source interface {
	// Name uniquely identifies the source within the manager.
	Name() string

	// Start begins producing events. The source must stop raising when
	// Stop is called or ctx is cancelled.
	Start(ctx context.Context, raise RaiseFunc) error

	// Stop halts event production.
	Stop(ctx context.Context) error
}

// Processor consumes entity change events. The fan-out engine is the
// typical processor.
type Processor interface {
	// Name uniquely identifies the processor within the manager.
	Name() string

	// ProcessEntityEvent reacts to one entity change event.
	ProcessEntityEvent(ctx context.Context, evt *EntityEvent) error
}

// Manager maintains the mapping from source identity to registered
// change producers and from processor identity to registered consumers,
// and forwards every raised event to every registered processor.
// It is safe for concurrent use.
type Manager struct {
	mu         sync.RWMutex
	sources    map[string]Source
	processors map[string]Processor
	logger     *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sources:    make(map[string]Source),
		processors: make(map[string]Processor),
		logger:     logger,
	}
}

// RegisterSource adds a change producer. Registering a second source
// under the same name replaces the first.
func (m *Manager) RegisterSource(s Source) error {
	if s == nil {
		return fmt.Errorf("event: nil source")
	}
	if s.Name() == "" {
		return fmt.Errorf("event: source has empty name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[s.Name()] = s
	return nil
}

// UnregisterSource removes a change producer by name. Unknown names are
// ignored.
func (m *Manager) UnregisterSource(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, name)
}

// RegisterProcessor adds an event consumer. Registering a second
// processor under the same name replaces the first.
func (m *Manager) RegisterProcessor(p Processor) error {
	if p == nil {
		return fmt.Errorf("event: nil processor")
	}
	if p.Name() == "" {
		return fmt.Errorf("event: processor has empty name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.processors[p.Name()] = p
	return nil
}

// UnregisterProcessor removes an event consumer by name. Unknown names
// are ignored.
func (m *Manager) UnregisterProcessor(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processors, name)
}

// Sources returns the names of the registered sources.
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	return names
}

// Dispatch forwards an event to every registered processor. A failing
// processor is logged and does not prevent delivery to the others.
func (m *Manager) Dispatch(ctx context.Context, evt *EntityEvent) {
	if evt == nil {
		return
	}

	m.mu.RLock()
	targets := make([]Processor, 0, len(m.processors))
	for _, p := range m.processors {
		targets = append(targets, p)
	}
	m.mu.RUnlock()

	for _, p := range targets {
		if err := p.ProcessEntityEvent(ctx, evt); err != nil {
			m.logger.Warn("event processor failed",
				slog.String("processor", p.Name()),
				slog.String("entity_type", evt.EntityType),
				slog.String("entity_id", evt.EntityID),
				slog.String("event_type", string(evt.EventType)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// StartSources starts every registered source, handing each the
// manager's Dispatch as its raise function. The first start failure is
// returned after attempting the rest.
func (m *Manager) StartSources(ctx context.Context) error {
	m.mu.RLock()
	sources := make([]Source, 0, len(m.sources))
	for _, s := range m.sources {
		sources = append(sources, s)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, s := range sources {
		if err := s.Start(ctx, m.Dispatch); err != nil {
			m.logger.Error("event source failed to start",
				slog.String("source", s.Name()),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("event: start source %s: %w", s.Name(), err)
			}
		}
	}
	return firstErr
}

// StopSources stops every registered source, logging failures.
func (m *Manager) StopSources(ctx context.Context) {
	m.mu.RLock()
	sources := make([]Source, 0, len(m.sources))
	for _, s := range m.sources {
		sources = append(sources, s)
	}
	m.mu.RUnlock()

	for _, s := range sources {
		if err := s.Stop(ctx); err != nil {
			m.logger.Warn("event source stop error",
				slog.String("source", s.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
