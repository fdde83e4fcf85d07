// Package queue gates the engine's work categories with per-queue
// concurrency caps and token-bucket rate limits. The scheduler and
// event sources ask the manager for a slot before starting a fan-out;
// work that cannot get a slot is retried on a later tick rather than
// queued in memory.
package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines one queue's admission behaviour.
type Config struct {
	// Name identifies the queue ("events", "recurring", "maintenance").
	Name string

	// MaxConcurrency limits how many fan-outs from this queue may run
	// simultaneously. Zero means unlimited.
	MaxConcurrency int

	// RateLimit is the maximum sustained admissions per second. Zero
	// disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return qs
}

// Manager tracks admission state per queue. It is safe for concurrent
// use. Queues without a registered Config have no limits.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewManager creates a Manager with the given queue configurations.
func NewManager(configs ...Config) *Manager {
	m := &Manager{queues: make(map[string]*queueState, len(configs))}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newQueueState(cfg)
	}
	return m
}

// Acquire checks the queue's concurrency cap and rate limit. If the
// work may proceed it increments the active counter and returns true.
// The caller MUST call Release when the work completes. The cap is
// checked before the limiter so a full queue never consumes a rate
// token.
func (m *Manager) Acquire(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs == nil {
		return true
	}
	if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
		return false
	}
	if qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	qs.active++
	return true
}

// Release returns a slot to the queue.
func (m *Manager) Release(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetConfig updates (or creates) a queue configuration, preserving the
// current active count.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.queues[cfg.Name]
	qs := newQueueState(cfg)
	if existing != nil {
		qs.active = existing.active
	}
	m.queues[cfg.Name] = qs
}

// ActiveCount returns the number of slots currently held for a queue.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
