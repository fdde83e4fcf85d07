package event_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jhosm/ProductBundles-sub000/event"
)

type recordingProcessor struct {
	name string
	mu   sync.Mutex
	seen []*event.EntityEvent
	err  error
}

func (p *recordingProcessor) Name() string { return p.name }

func (p *recordingProcessor) ProcessEntityEvent(_ context.Context, evt *event.EntityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, evt)
	return p.err
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

type tickSource struct {
	name    string
	started bool
	stopped bool
	raise   event.RaiseFunc
}

func (s *tickSource) Name() string { return s.name }

func (s *tickSource) Start(_ context.Context, raise event.RaiseFunc) error {
	s.started = true
	s.raise = raise
	return nil
}

func (s *tickSource) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func newManager() *event.Manager {
	return event.NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatchReachesAllProcessors(t *testing.T) {
	m := newManager()
	first := &recordingProcessor{name: "first"}
	second := &recordingProcessor{name: "second"}
	if err := m.RegisterProcessor(first); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterProcessor(second); err != nil {
		t.Fatal(err)
	}

	m.Dispatch(context.Background(), event.NewEntityEvent("customer", "123", event.ChangeUpdated))

	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("delivery counts = %d, %d; want 1, 1", first.count(), second.count())
	}
}

func TestFailingProcessorDoesNotBlockOthers(t *testing.T) {
	m := newManager()
	failing := &recordingProcessor{name: "failing", err: errors.New("boom")}
	healthy := &recordingProcessor{name: "healthy"}
	_ = m.RegisterProcessor(failing)
	_ = m.RegisterProcessor(healthy)

	m.Dispatch(context.Background(), event.NewEntityEvent("order", "9", event.ChangeCreated))

	if healthy.count() != 1 {
		t.Fatalf("healthy processor saw %d events, want 1", healthy.count())
	}
}

func TestUnregisterProcessor(t *testing.T) {
	m := newManager()
	p := &recordingProcessor{name: "p"}
	_ = m.RegisterProcessor(p)
	m.UnregisterProcessor("p")

	m.Dispatch(context.Background(), event.NewEntityEvent("customer", "1", event.ChangeDeleted))
	if p.count() != 0 {
		t.Fatalf("unregistered processor saw %d events", p.count())
	}
}

func TestSourceLifecycle(t *testing.T) {
	m := newManager()
	src := &tickSource{name: "crm"}
	if err := m.RegisterSource(src); err != nil {
		t.Fatal(err)
	}

	p := &recordingProcessor{name: "engine"}
	_ = m.RegisterProcessor(p)

	if err := m.StartSources(context.Background()); err != nil {
		t.Fatalf("start sources: %v", err)
	}
	if !src.started {
		t.Fatal("source was not started")
	}

	// A started source raises through the manager's dispatch.
	src.raise(context.Background(), event.NewEntityEvent("customer", "42", event.ChangeUpdated))
	if p.count() != 1 {
		t.Fatalf("processor saw %d events, want 1", p.count())
	}

	m.StopSources(context.Background())
	if !src.stopped {
		t.Fatal("source was not stopped")
	}
}

func TestRegisterValidation(t *testing.T) {
	m := newManager()
	if err := m.RegisterSource(nil); err == nil {
		t.Fatal("nil source should be rejected")
	}
	if err := m.RegisterProcessor(nil); err == nil {
		t.Fatal("nil processor should be rejected")
	}
	if err := m.RegisterProcessor(&recordingProcessor{name: ""}); err == nil {
		t.Fatal("empty processor name should be rejected")
	}
}

func TestEventName(t *testing.T) {
	evt := event.NewEntityEvent("customer", "123", event.ChangeUpdated)
	if evt.Name() != "entity.updated" {
		t.Fatalf("name = %q, want entity.updated", evt.Name())
	}
}
