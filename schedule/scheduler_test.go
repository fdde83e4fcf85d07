package schedule_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/fanout"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/queue"
	"github.com/jhosm/ProductBundles-sub000/schedule"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memScheduleStore is an in-memory schedule.Store.
type memScheduleStore struct {
	mu      sync.Mutex
	entries map[id.ScheduleID]*schedule.Entry
	byKey   map[string]id.ScheduleID
}

func newMemScheduleStore() *memScheduleStore {
	return &memScheduleStore{
		entries: make(map[id.ScheduleID]*schedule.Entry),
		byKey:   make(map[string]id.ScheduleID),
	}
}

func (s *memScheduleStore) RegisterSchedule(ctx context.Context, entry *schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[entry.JobKey()]; ok {
		return bundles.ErrDuplicateSchedule
	}
	copied := *entry
	s.entries[entry.ID] = &copied
	s.byKey[entry.JobKey()] = entry.ID
	return nil
}

func (s *memScheduleStore) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[scheduleID]
	if !ok {
		return nil, bundles.ErrScheduleNotFound
	}
	copied := *entry
	return &copied, nil
}

func (s *memScheduleStore) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schedule.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		copied := *entry
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memScheduleStore) UpdateSchedule(ctx context.Context, entry *schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return bundles.ErrScheduleNotFound
	}
	copied := *entry
	s.entries[entry.ID] = &copied
	return nil
}

func (s *memScheduleStore) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[scheduleID]
	if !ok {
		return bundles.ErrScheduleNotFound
	}
	delete(s.byKey, entry.JobKey())
	delete(s.entries, scheduleID)
	return nil
}

type runCall struct {
	bundleID string
	jobName  string
	params   map[string]any
}

// fakeRunner records job runs and signals each on a channel.
type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	ran   chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{ran: make(chan struct{}, 16)}
}

func (r *fakeRunner) ExecuteRecurringJob(ctx context.Context, bundleID, jobName string, params map[string]any) (fanout.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, runCall{bundleID: bundleID, jobName: jobName, params: params})
	r.mu.Unlock()
	r.ran <- struct{}{}
	return fanout.Result{Attempted: 1, Succeeded: 1}, nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func waitForRun(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a job run")
	}
}

func testScheduler(store schedule.Store, runner schedule.Runner, qm *queue.Manager) *schedule.Scheduler {
	if qm == nil {
		qm = queue.NewManager()
	}
	return schedule.NewScheduler(store, runner, qm, discardLogger())
}

func reportingBundle() bundle.Descriptor {
	return bundle.Descriptor{
		ID:      "reports",
		Version: "1.0.0",
		RecurringJobs: []bundle.RecurringJob{
			{Name: "nightly", Schedule: "0 2 * * *", Description: "Nightly rollup", Params: map[string]any{"region": "eu"}},
			{Name: "sweep", Schedule: "@every 1h"},
		},
	}
}

func TestRegisterBundleCreatesEntries(t *testing.T) {
	store := newMemScheduleStore()
	s := testScheduler(store, newFakeRunner(), nil)

	if err := s.RegisterBundle(context.Background(), reportingBundle()); err != nil {
		t.Fatalf("RegisterBundle: %v", err)
	}

	entries, err := store.ListSchedules(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for _, entry := range entries {
		if entry.BundleID != "reports" {
			t.Errorf("bundle id = %q, want reports", entry.BundleID)
		}
		if !entry.Enabled {
			t.Errorf("entry %s not enabled", entry.JobKey())
		}
		if entry.NextRunAt == nil || !entry.NextRunAt.After(time.Now().Add(-time.Minute)) {
			t.Errorf("entry %s has no future NextRunAt", entry.JobKey())
		}
		if entry.Queue != bundles.QueueRecurring {
			t.Errorf("entry %s queue = %q, want %q", entry.JobKey(), entry.Queue, bundles.QueueRecurring)
		}
	}
}

func TestRegisterBundleIsIdempotent(t *testing.T) {
	store := newMemScheduleStore()
	s := testScheduler(store, newFakeRunner(), nil)

	for i := 0; i < 3; i++ {
		if err := s.RegisterBundle(context.Background(), reportingBundle()); err != nil {
			t.Fatalf("RegisterBundle round %d: %v", i, err)
		}
	}

	entries, _ := store.ListSchedules(context.Background())
	if len(entries) != 2 {
		t.Fatalf("entries after repeated registration = %d, want 2", len(entries))
	}
}

func TestRegisterBundleRejectsBadCron(t *testing.T) {
	store := newMemScheduleStore()
	s := testScheduler(store, newFakeRunner(), nil)

	desc := bundle.Descriptor{
		ID:      "mixed",
		Version: "1.0.0",
		RecurringJobs: []bundle.RecurringJob{
			{Name: "bad", Schedule: "not a cron"},
			{Name: "good", Schedule: "* * * * *"},
		},
	}
	if err := s.RegisterBundle(context.Background(), desc); err == nil {
		t.Fatal("expected an error for the unparseable schedule")
	}

	entries, _ := store.ListSchedules(context.Background())
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (only the valid job)", len(entries))
	}
	if entries[0].JobName != "good" {
		t.Errorf("registered job = %q, want good", entries[0].JobName)
	}
}

func TestTickFiresDueEntry(t *testing.T) {
	store := newMemScheduleStore()
	runner := newFakeRunner()
	s := testScheduler(store, runner, nil)

	if err := s.RegisterBundle(context.Background(), reportingBundle()); err != nil {
		t.Fatalf("RegisterBundle: %v", err)
	}

	// Force the nightly entry due.
	entries, _ := store.ListSchedules(context.Background())
	var nightly *schedule.Entry
	for _, entry := range entries {
		if entry.JobName == "nightly" {
			nightly = entry
		}
	}
	past := time.Now().UTC().Add(-time.Minute)
	nightly.NextRunAt = &past
	if err := store.UpdateSchedule(context.Background(), nightly); err != nil {
		t.Fatalf("force due: %v", err)
	}

	s.Tick(context.Background())
	waitForRun(t, runner)

	runner.mu.Lock()
	call := runner.calls[0]
	runner.mu.Unlock()
	if call.bundleID != "reports" || call.jobName != "nightly" {
		t.Errorf("ran %s.%s, want reports.nightly", call.bundleID, call.jobName)
	}
	if call.params["region"] != "eu" {
		t.Errorf("params = %v, want region=eu", call.params)
	}

	updated, err := store.GetSchedule(context.Background(), nightly.ID)
	if err != nil {
		t.Fatalf("get after fire: %v", err)
	}
	if updated.LastRunAt == nil {
		t.Error("LastRunAt not recorded")
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(time.Now().UTC()) {
		t.Error("NextRunAt not advanced past now")
	}

	// The same entry must not fire again until due.
	s.Tick(context.Background())
	time.Sleep(50 * time.Millisecond)
	if got := runner.callCount(); got != 1 {
		t.Errorf("runs after second tick = %d, want 1", got)
	}
}

func TestTickSkipsDisabledEntries(t *testing.T) {
	store := newMemScheduleStore()
	runner := newFakeRunner()
	s := testScheduler(store, runner, nil)

	entry := schedule.NewEntry("reports", bundle.RecurringJob{Name: "nightly", Schedule: "* * * * *"})
	past := time.Now().UTC().Add(-time.Minute)
	entry.NextRunAt = &past
	entry.Enabled = false
	if err := store.RegisterSchedule(context.Background(), entry); err != nil {
		t.Fatalf("register: %v", err)
	}

	s.Tick(context.Background())
	time.Sleep(50 * time.Millisecond)
	if got := runner.callCount(); got != 0 {
		t.Errorf("runs = %d, want 0 for disabled entry", got)
	}
}

func TestTickRespectsQueueLimit(t *testing.T) {
	store := newMemScheduleStore()
	runner := newFakeRunner()
	qm := queue.NewManager(queue.Config{Name: bundles.QueueRecurring, RateLimit: 0.001, RateBurst: 1})
	s := testScheduler(store, runner, qm)

	past := time.Now().UTC().Add(-time.Minute)
	for _, name := range []string{"one", "two"} {
		entry := schedule.NewEntry("reports", bundle.RecurringJob{Name: name, Schedule: "* * * * *"})
		entry.NextRunAt = &past
		entry.Queue = bundles.QueueRecurring
		if err := store.RegisterSchedule(context.Background(), entry); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	s.Tick(context.Background())
	waitForRun(t, runner)
	time.Sleep(50 * time.Millisecond)
	if got := runner.callCount(); got != 1 {
		t.Fatalf("runs = %d, want 1 (second admission rate limited)", got)
	}

	// The unfired entry is still due for the next tick.
	entries, _ := store.ListSchedules(context.Background())
	stillDue := 0
	for _, entry := range entries {
		if entry.NextRunAt != nil && !entry.NextRunAt.After(time.Now().UTC()) {
			stillDue++
		}
	}
	if stillDue != 1 {
		t.Errorf("still-due entries = %d, want 1", stillDue)
	}
}

func TestStartStop(t *testing.T) {
	store := newMemScheduleStore()
	runner := newFakeRunner()
	s := schedule.NewScheduler(store, runner, queue.NewManager(), discardLogger(),
		schedule.WithTickInterval(10*time.Millisecond))

	entry := schedule.NewEntry("reports", bundle.RecurringJob{Name: "fast", Schedule: "* * * * *"})
	past := time.Now().UTC().Add(-time.Minute)
	entry.NextRunAt = &past
	if err := store.RegisterSchedule(context.Background(), entry); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForRun(t, runner)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
