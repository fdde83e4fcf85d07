package queue_test

import (
	"testing"

	"github.com/jhosm/ProductBundles-sub000/queue"
)

func TestAcquireUnknownQueueIsUnlimited(t *testing.T) {
	m := queue.NewManager()
	for i := 0; i < 100; i++ {
		if !m.Acquire("events") {
			t.Fatalf("acquire %d on unconfigured queue denied", i)
		}
	}
}

func TestMaxConcurrency(t *testing.T) {
	m := queue.NewManager(queue.Config{Name: "recurring", MaxConcurrency: 2})

	if !m.Acquire("recurring") || !m.Acquire("recurring") {
		t.Fatal("first two acquires should succeed")
	}
	if m.Acquire("recurring") {
		t.Fatal("third acquire should be denied at cap 2")
	}

	m.Release("recurring")
	if !m.Acquire("recurring") {
		t.Fatal("acquire after release should succeed")
	}
	if got := m.ActiveCount("recurring"); got != 2 {
		t.Errorf("active = %d, want 2", got)
	}
}

func TestRateLimit(t *testing.T) {
	// 1/s with burst 1: the first acquire drains the bucket.
	m := queue.NewManager(queue.Config{Name: "events", RateLimit: 1, RateBurst: 1})

	if !m.Acquire("events") {
		t.Fatal("first acquire should pass the limiter")
	}
	if m.Acquire("events") {
		t.Fatal("second immediate acquire should be rate limited")
	}
}

func TestCapRejectionKeepsRateBudget(t *testing.T) {
	// Burst 2 with a negligible refill: exactly two tokens for the whole
	// test. A cap-denied acquire must not spend one.
	m := queue.NewManager(queue.Config{Name: "events", MaxConcurrency: 1, RateLimit: 0.001, RateBurst: 2})

	if !m.Acquire("events") {
		t.Fatal("first acquire should succeed")
	}
	// Queue is full: denied on the cap, before the limiter.
	if m.Acquire("events") {
		t.Fatal("acquire at cap should be denied")
	}

	m.Release("events")
	if !m.Acquire("events") {
		t.Fatal("second token should survive the cap rejection")
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	m := queue.NewManager(queue.Config{Name: "maintenance", MaxConcurrency: 1})
	m.Release("maintenance")
	if got := m.ActiveCount("maintenance"); got != 0 {
		t.Errorf("active = %d, want 0", got)
	}
	if !m.Acquire("maintenance") {
		t.Fatal("acquire after spurious release should succeed")
	}
}

func TestSetConfigPreservesActive(t *testing.T) {
	m := queue.NewManager(queue.Config{Name: "events", MaxConcurrency: 1})
	if !m.Acquire("events") {
		t.Fatal("acquire should succeed")
	}

	m.SetConfig(queue.Config{Name: "events", MaxConcurrency: 2})
	if got := m.ActiveCount("events"); got != 1 {
		t.Errorf("active after reconfigure = %d, want 1", got)
	}
	if !m.Acquire("events") {
		t.Fatal("acquire under raised cap should succeed")
	}
	if m.Acquire("events") {
		t.Fatal("acquire past raised cap should be denied")
	}
}
