package fanout_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/event"
	"github.com/jhosm/ProductBundles-sub000/fanout"
	"github.com/jhosm/ProductBundles-sub000/guard"
	"github.com/jhosm/ProductBundles-sub000/hook"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory instance.Store that counts page fetches and
// can be told to fail updates for chosen instances or fail all reads.
type memStore struct {
	mu         sync.Mutex
	order      []id.InstanceID
	items      map[id.InstanceID]*instance.Instance
	listCalls  int
	failUpdate map[id.InstanceID]bool
	getErr     error
}

func newMemStore() *memStore {
	return &memStore{
		items:      make(map[id.InstanceID]*instance.Instance),
		failUpdate: make(map[id.InstanceID]bool),
	}
}

func (s *memStore) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[inst.ID]; ok {
		return bundles.ErrInstanceExists
	}
	s.items[inst.ID] = inst.Clone()
	s.order = append(s.order, inst.ID)
	return nil
}

func (s *memStore) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	inst, ok := s.items[instanceID]
	if !ok {
		return nil, bundles.ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

func (s *memStore) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate[inst.ID] {
		return fmt.Errorf("update rejected")
	}
	if _, ok := s.items[inst.ID]; !ok {
		return bundles.ErrInstanceNotFound
	}
	s.items[inst.ID] = inst.Clone()
	return nil
}

func (s *memStore) DeleteInstance(ctx context.Context, instanceID id.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[instanceID]; !ok {
		return bundles.ErrInstanceNotFound
	}
	delete(s.items, instanceID)
	for i, existing := range s.order {
		if existing == instanceID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memStore) InstanceExists(ctx context.Context, instanceID id.InstanceID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[instanceID]
	return ok, nil
}

func (s *memStore) ListInstancesByBundle(ctx context.Context, bundleID string, req instance.PageRequest) (*instance.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	var matched []*instance.Instance
	for _, instanceID := range s.order {
		if inst := s.items[instanceID]; inst.BundleID == bundleID {
			matched = append(matched, inst)
		}
	}

	skip := req.Skip()
	if skip >= len(matched) {
		return instance.NewPage(nil, req), nil
	}
	end := skip + req.Size
	if end > len(matched) {
		end = len(matched)
	}
	items := make([]*instance.Instance, 0, end-skip)
	for _, inst := range matched[skip:end] {
		items = append(items, inst.Clone())
	}
	return instance.NewPage(items, req), nil
}

func (s *memStore) CountInstances(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *memStore) CountInstancesByBundle(ctx context.Context, bundleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inst := range s.items {
		if inst.BundleID == bundleID {
			n++
		}
	}
	return n, nil
}

// scriptBundle is a bundle whose event and upgrade behavior the test
// controls per call.
type scriptBundle struct {
	desc    bundle.Descriptor
	handle  func(ctx context.Context, eventName string, inst *instance.Instance) (*instance.Instance, error)
	upgrade func(ctx context.Context, inst *instance.Instance) (*instance.Instance, error)

	mu           sync.Mutex
	handleCalls  int
	upgradeCalls int
	eventNames   []string
}

func (b *scriptBundle) Descriptor() bundle.Descriptor { return b.desc }

func (b *scriptBundle) HandleEvent(ctx context.Context, eventName string, inst *instance.Instance) (*instance.Instance, error) {
	b.mu.Lock()
	b.handleCalls++
	b.eventNames = append(b.eventNames, eventName)
	b.mu.Unlock()
	if b.handle != nil {
		return b.handle(ctx, eventName, inst)
	}
	return inst, nil
}

func (b *scriptBundle) Upgrade(ctx context.Context, inst *instance.Instance) (*instance.Instance, error) {
	b.mu.Lock()
	b.upgradeCalls++
	b.mu.Unlock()
	if b.upgrade != nil {
		return b.upgrade(ctx, inst)
	}
	return inst, nil
}

func (b *scriptBundle) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handleCalls
}

// recordingHook captures failure and upgrade notifications.
type recordingHook struct {
	mu       sync.Mutex
	failed   []id.InstanceID
	upgraded []id.InstanceID
}

func (h *recordingHook) Name() string { return "recording" }

func (h *recordingHook) OnInstanceFailed(ctx context.Context, bundleID, eventName string, instanceID id.InstanceID, failure error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, instanceID)
	return nil
}

func (h *recordingHook) OnInstanceUpgraded(ctx context.Context, bundleID, fromVersion, toVersion string, instanceID id.InstanceID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.upgraded = append(h.upgraded, instanceID)
	return nil
}

type engineFixture struct {
	registry *bundle.Registry
	store    *memStore
	hooks    *hook.Registry
	engine   *fanout.Engine
}

func newFixture(t *testing.T, b bundle.Bundle, opts ...fanout.Option) *engineFixture {
	t.Helper()
	logger := discardLogger()

	registry := bundle.NewRegistry(logger)
	if b != nil {
		if err := registry.Register(func() (bundle.Bundle, error) { return b, nil }); err != nil {
			t.Fatalf("register bundle: %v", err)
		}
	}

	store := newMemStore()
	hooks := hook.NewRegistry(logger)
	engine := fanout.New(registry, store, guard.New(logger), hooks, logger, opts...)
	return &engineFixture{registry: registry, store: store, hooks: hooks, engine: engine}
}

func seedInstances(t *testing.T, store *memStore, bundleID, version string, n int) []*instance.Instance {
	t.Helper()
	out := make([]*instance.Instance, 0, n)
	for i := 0; i < n; i++ {
		inst := instance.New(bundleID, version)
		inst.Properties.Set("seq", i)
		if err := store.CreateInstance(context.Background(), inst); err != nil {
			t.Fatalf("seed instance %d: %v", i, err)
		}
		out = append(out, inst)
	}
	return out
}

func TestProcessEntityEventEnrichesAndPersists(t *testing.T) {
	b := &scriptBundle{
		desc: bundle.Descriptor{ID: "billing-alerts", Version: "1.0.0"},
		handle: func(ctx context.Context, eventName string, inst *instance.Instance) (*instance.Instance, error) {
			inst.Properties.Set("handled", eventName)
			return inst, nil
		},
	}
	fx := newFixture(t, b)
	seeded := seedInstances(t, fx.store, "billing-alerts", "1.0.0", 3)

	evt := event.NewEntityEvent("customer", "cust-42", event.ChangeUpdated)
	evt.EntityData = map[string]any{"plan": "pro"}
	evt.Metadata = map[string]any{"source": "crm"}

	res, err := fx.engine.ProcessEntityEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("ProcessEntityEvent: %v", err)
	}
	if res.Attempted != 3 || res.Succeeded != 3 {
		t.Fatalf("result = %+v, want 3 attempted, 3 succeeded", res)
	}

	for _, seededInst := range seeded {
		got, err := fx.store.GetInstance(context.Background(), seededInst.ID)
		if err != nil {
			t.Fatalf("get persisted instance: %v", err)
		}
		if v, _ := got.Properties.Get("handled"); v != "entity.updated" {
			t.Errorf("handled = %v, want entity.updated", v)
		}
		if v, _ := got.Properties.Get("_entityType"); v != "customer" {
			t.Errorf("_entityType = %v, want customer", v)
		}
		if v, _ := got.Properties.Get("_entityId"); v != "cust-42" {
			t.Errorf("_entityId = %v, want cust-42", v)
		}
		if v, _ := got.Properties.Get("_eventType"); v != "updated" {
			t.Errorf("_eventType = %v, want updated", v)
		}
		if !got.Properties.Has("_eventTimestamp") {
			t.Error("missing _eventTimestamp")
		}
		if v, _ := got.Properties.Get("_entity_plan"); v != "pro" {
			t.Errorf("_entity_plan = %v, want pro", v)
		}
		if v, _ := got.Properties.Get("_meta_source"); v != "crm" {
			t.Errorf("_meta_source = %v, want crm", v)
		}
	}
}

func TestProcessEntityEventDoesNotMutateStoredOriginalOnFailure(t *testing.T) {
	var failID id.InstanceID
	b := &scriptBundle{
		desc: bundle.Descriptor{ID: "audit", Version: "1.0.0"},
		handle: func(ctx context.Context, eventName string, inst *instance.Instance) (*instance.Instance, error) {
			if inst.ID == failID {
				return nil, errors.New("boom")
			}
			inst.Properties.Set("handled", true)
			return inst, nil
		},
	}
	fx := newFixture(t, b)
	seeded := seedInstances(t, fx.store, "audit", "1.0.0", 3)
	failID = seeded[1].ID

	var rec recordingHook
	fx.hooks.Register(&rec)

	res, err := fx.engine.ProcessEntityEvent(context.Background(), event.NewEntityEvent("order", "o-1", event.ChangeCreated))
	if err != nil {
		t.Fatalf("ProcessEntityEvent: %v", err)
	}
	if res.Attempted != 3 || res.Succeeded != 2 {
		t.Fatalf("result = %+v, want 3 attempted, 2 succeeded", res)
	}

	unchanged, err := fx.store.GetInstance(context.Background(), failID)
	if err != nil {
		t.Fatalf("get failed instance: %v", err)
	}
	if unchanged.Properties.Has("handled") {
		t.Error("failed instance was persisted with handler changes")
	}
	if unchanged.Properties.Has("_entityType") {
		t.Error("failed instance was persisted with enrichment keys")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.failed) != 1 || rec.failed[0] != failID {
		t.Errorf("failed hook notifications = %v, want exactly %s", rec.failed, failID)
	}
}

func TestProcessEntityEventPersistFailureIsolated(t *testing.T) {
	b := &scriptBundle{desc: bundle.Descriptor{ID: "sync", Version: "1.0.0"}}
	fx := newFixture(t, b)
	seeded := seedInstances(t, fx.store, "sync", "1.0.0", 2)
	fx.store.failUpdate[seeded[0].ID] = true

	res, err := fx.engine.ProcessEntityEvent(context.Background(), event.NewEntityEvent("user", "u-1", event.ChangeDeleted))
	if err != nil {
		t.Fatalf("ProcessEntityEvent: %v", err)
	}
	if res.Attempted != 2 || res.Succeeded != 1 {
		t.Fatalf("result = %+v, want 2 attempted, 1 succeeded", res)
	}
}

func TestPageFetchCounts(t *testing.T) {
	tests := []struct {
		name       string
		instances  int
		pageSize   int
		wantFetch  int
		wantInvoke int
	}{
		{name: "empty", instances: 0, pageSize: 10, wantFetch: 1, wantInvoke: 0},
		{name: "partial page", instances: 5, pageSize: 10, wantFetch: 2, wantInvoke: 5},
		{name: "exact page", instances: 10, pageSize: 10, wantFetch: 2, wantInvoke: 10},
		{name: "two and a half pages", instances: 25, pageSize: 10, wantFetch: 4, wantInvoke: 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &scriptBundle{desc: bundle.Descriptor{ID: "pager", Version: "1.0.0"}}
			fx := newFixture(t, b, fanout.WithPageSize(tt.pageSize))
			seedInstances(t, fx.store, "pager", "1.0.0", tt.instances)

			if _, err := fx.engine.ProcessEntityEvent(context.Background(), event.NewEntityEvent("item", "i-1", event.ChangeUpdated)); err != nil {
				t.Fatalf("ProcessEntityEvent: %v", err)
			}
			if fx.store.listCalls != tt.wantFetch {
				t.Errorf("page fetches = %d, want %d", fx.store.listCalls, tt.wantFetch)
			}
			if got := b.calls(); got != tt.wantInvoke {
				t.Errorf("invocations = %d, want %d", got, tt.wantInvoke)
			}
		})
	}
}

func TestPageFetchCountsAtDefaultPageSize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 2500-instance scan in short mode")
	}

	b := &scriptBundle{desc: bundle.Descriptor{ID: "bulk", Version: "1.0.0"}}
	fx := newFixture(t, b)
	seedInstances(t, fx.store, "bulk", "1.0.0", 2500)

	res, err := fx.engine.ProcessEntityEvent(context.Background(), event.NewEntityEvent("doc", "d-1", event.ChangeCreated))
	if err != nil {
		t.Fatalf("ProcessEntityEvent: %v", err)
	}
	if fx.store.listCalls != 4 {
		t.Errorf("page fetches = %d, want 4", fx.store.listCalls)
	}
	if res.Attempted != 2500 || res.Succeeded != 2500 {
		t.Errorf("result = %+v, want 2500 attempted and succeeded", res)
	}
}

func TestProcessEntityEventInvalidPageSize(t *testing.T) {
	b := &scriptBundle{desc: bundle.Descriptor{ID: "strict", Version: "1.0.0"}}
	fx := newFixture(t, b, fanout.WithPageSize(1001))
	seedInstances(t, fx.store, "strict", "1.0.0", 1)

	// The scan rejects the out-of-range page size before any fetch; the
	// event-level fan-out logs it and reports zero work.
	res, err := fx.engine.ProcessEntityEvent(context.Background(), event.NewEntityEvent("x", "x-1", event.ChangeCreated))
	if err != nil {
		t.Fatalf("ProcessEntityEvent: %v", err)
	}
	if res.Attempted != 0 {
		t.Errorf("attempted = %d, want 0", res.Attempted)
	}
	if fx.store.listCalls != 0 {
		t.Errorf("page fetches = %d, want 0", fx.store.listCalls)
	}
}

func TestExecuteRecurringJobEnrichment(t *testing.T) {
	var seen *instance.Instance
	b := &scriptBundle{
		desc: bundle.Descriptor{
			ID:      "reports",
			Version: "1.0.0",
			RecurringJobs: []bundle.RecurringJob{
				{Name: "nightly", Schedule: "0 2 * * *", Description: "Nightly rollup"},
			},
		},
		handle: func(ctx context.Context, eventName string, inst *instance.Instance) (*instance.Instance, error) {
			seen = inst.Clone()
			return inst, nil
		},
	}
	fx := newFixture(t, b)
	seedInstances(t, fx.store, "reports", "1.0.0", 1)

	res, err := fx.engine.ExecuteRecurringJob(context.Background(), "reports", "nightly", map[string]any{"region": "eu"})
	if err != nil {
		t.Fatalf("ExecuteRecurringJob: %v", err)
	}
	if res.Attempted != 1 || res.Succeeded != 1 {
		t.Fatalf("result = %+v, want 1 attempted, 1 succeeded", res)
	}

	if got := b.eventNames[0]; got != "recurring.nightly" {
		t.Errorf("event name = %q, want recurring.nightly", got)
	}
	if v, _ := seen.Properties.Get("_recurringJobName"); v != "nightly" {
		t.Errorf("_recurringJobName = %v, want nightly", v)
	}
	if v, _ := seen.Properties.Get("_recurringJobDescription"); v != "Nightly rollup" {
		t.Errorf("_recurringJobDescription = %v, want Nightly rollup", v)
	}
	if !seen.Properties.Has("_executionTimestamp") {
		t.Error("missing _executionTimestamp")
	}
	if v, _ := seen.Properties.Get("_job_region"); v != "eu" {
		t.Errorf("_job_region = %v, want eu", v)
	}
}

func TestExecuteRecurringJobEventNameOverride(t *testing.T) {
	b := &scriptBundle{
		desc: bundle.Descriptor{
			ID:            "reports",
			Version:       "1.0.0",
			RecurringJobs: []bundle.RecurringJob{{Name: "sweep", Schedule: "@hourly"}},
		},
	}
	fx := newFixture(t, b)
	seedInstances(t, fx.store, "reports", "1.0.0", 1)

	if _, err := fx.engine.ExecuteRecurringJob(context.Background(), "reports", "sweep", map[string]any{"eventName": "custom.tick"}); err != nil {
		t.Fatalf("ExecuteRecurringJob: %v", err)
	}
	if got := b.eventNames[0]; got != "custom.tick" {
		t.Errorf("event name = %q, want custom.tick", got)
	}
}

func TestExecuteRecurringJobUnknownJob(t *testing.T) {
	b := &scriptBundle{desc: bundle.Descriptor{ID: "reports", Version: "1.0.0"}}
	fx := newFixture(t, b)
	seedInstances(t, fx.store, "reports", "1.0.0", 2)

	res, err := fx.engine.ExecuteRecurringJob(context.Background(), "reports", "missing", nil)
	if err != nil {
		t.Fatalf("ExecuteRecurringJob: %v", err)
	}
	if res.Attempted != 0 {
		t.Errorf("attempted = %d, want 0", res.Attempted)
	}
	if b.calls() != 0 {
		t.Errorf("invocations = %d, want 0", b.calls())
	}
}

func TestExecuteRecurringJobUnknownBundle(t *testing.T) {
	fx := newFixture(t, nil)
	_, err := fx.engine.ExecuteRecurringJob(context.Background(), "ghost", "nightly", nil)
	if !errors.Is(err, bundles.ErrBundleNotFound) {
		t.Fatalf("err = %v, want ErrBundleNotFound", err)
	}
}

func TestExecuteRecurringJobBlankBundleID(t *testing.T) {
	fx := newFixture(t, nil)
	_, err := fx.engine.ExecuteRecurringJob(context.Background(), "  ", "nightly", nil)
	if !errors.Is(err, bundles.ErrEmptyBundleID) {
		t.Fatalf("err = %v, want ErrEmptyBundleID", err)
	}
}

func TestExecuteRecurringJobWithoutInstancesRunsOnce(t *testing.T) {
	b := &scriptBundle{
		desc: bundle.Descriptor{
			ID:            "heartbeat",
			Version:       "1.0.0",
			RecurringJobs: []bundle.RecurringJob{{Name: "ping", Schedule: "* * * * *"}},
		},
	}
	fx := newFixture(t, b)

	res, err := fx.engine.ExecuteRecurringJob(context.Background(), "heartbeat", "ping", nil)
	if err != nil {
		t.Fatalf("ExecuteRecurringJob: %v", err)
	}
	if res.Attempted != 1 || res.Succeeded != 1 {
		t.Fatalf("result = %+v, want 1 attempted, 1 succeeded", res)
	}
	if b.calls() != 1 {
		t.Errorf("invocations = %d, want 1", b.calls())
	}

	// The ephemeral instance must never reach the store.
	n, err := fx.store.CountInstances(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("stored instances = %d, want 0", n)
	}
}

func TestExecuteOne(t *testing.T) {
	b := &scriptBundle{
		desc: bundle.Descriptor{ID: "single", Version: "1.0.0"},
		handle: func(ctx context.Context, eventName string, inst *instance.Instance) (*instance.Instance, error) {
			inst.Properties.Set("touched", eventName)
			return inst, nil
		},
	}
	fx := newFixture(t, b)
	seeded := seedInstances(t, fx.store, "single", "1.0.0", 2)

	if err := fx.engine.ExecuteOne(context.Background(), seeded[0].ID, "manual.run"); err != nil {
		t.Fatalf("ExecuteOne: %v", err)
	}

	got, err := fx.store.GetInstance(context.Background(), seeded[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v, _ := got.Properties.Get("touched"); v != "manual.run" {
		t.Errorf("touched = %v, want manual.run", v)
	}

	other, err := fx.store.GetInstance(context.Background(), seeded[1].ID)
	if err != nil {
		t.Fatalf("get untargeted: %v", err)
	}
	if other.Properties.Has("touched") {
		t.Error("untargeted instance was processed")
	}
	if b.calls() != 1 {
		t.Errorf("invocations = %d, want 1", b.calls())
	}
}

func TestExecuteOneValidation(t *testing.T) {
	b := &scriptBundle{desc: bundle.Descriptor{ID: "single", Version: "1.0.0"}}
	fx := newFixture(t, b)
	seeded := seedInstances(t, fx.store, "single", "1.0.0", 1)

	if err := fx.engine.ExecuteOne(context.Background(), id.InstanceID{}, "manual.run"); !errors.Is(err, bundles.ErrEmptyInstanceID) {
		t.Errorf("nil instance id: err = %v, want ErrEmptyInstanceID", err)
	}
	if err := fx.engine.ExecuteOne(context.Background(), seeded[0].ID, "  "); !errors.Is(err, bundles.ErrEmptyEventName) {
		t.Errorf("blank event name: err = %v, want ErrEmptyEventName", err)
	}
	if b.calls() != 0 {
		t.Errorf("invocations = %d, want 0", b.calls())
	}
}

func TestExecuteOneUnknownInstanceIsQuiet(t *testing.T) {
	b := &scriptBundle{desc: bundle.Descriptor{ID: "single", Version: "1.0.0"}}
	fx := newFixture(t, b)

	if err := fx.engine.ExecuteOne(context.Background(), id.NewInstanceID(), "manual.run"); err != nil {
		t.Fatalf("ExecuteOne for absent instance: %v", err)
	}
	if b.calls() != 0 {
		t.Errorf("invocations = %d, want 0", b.calls())
	}
}

func TestExecuteOneStoreFailurePropagates(t *testing.T) {
	b := &scriptBundle{desc: bundle.Descriptor{ID: "single", Version: "1.0.0"}}
	fx := newFixture(t, b)
	seeded := seedInstances(t, fx.store, "single", "1.0.0", 1)

	storeErr := fmt.Errorf("connection refused")
	fx.store.getErr = storeErr

	err := fx.engine.ExecuteOne(context.Background(), seeded[0].ID, "manual.run")
	if !errors.Is(err, storeErr) {
		t.Fatalf("ExecuteOne err = %v, want wrapped store error", err)
	}
	if b.calls() != 0 {
		t.Errorf("invocations = %d, want 0", b.calls())
	}
}

func TestUpgradeAllSkipsCurrentVersion(t *testing.T) {
	b := &scriptBundle{
		desc: bundle.Descriptor{ID: "mig", Version: "2.0.0"},
		upgrade: func(ctx context.Context, inst *instance.Instance) (*instance.Instance, error) {
			inst.Properties.Set("migrated", true)
			return inst, nil
		},
	}
	fx := newFixture(t, b)
	stale := seedInstances(t, fx.store, "mig", "1.0.0", 2)
	current := instance.New("mig", "2.0.0")
	if err := fx.store.CreateInstance(context.Background(), current); err != nil {
		t.Fatalf("seed current: %v", err)
	}

	var rec recordingHook
	fx.hooks.Register(&rec)

	res, err := fx.engine.UpgradeAll(context.Background(), "mig")
	if err != nil {
		t.Fatalf("UpgradeAll: %v", err)
	}
	if res.Attempted != 2 || res.Succeeded != 2 {
		t.Fatalf("result = %+v, want 2 attempted, 2 succeeded", res)
	}
	if b.upgradeCalls != 2 {
		t.Errorf("upgrade calls = %d, want 2", b.upgradeCalls)
	}

	for _, inst := range stale {
		got, err := fx.store.GetInstance(context.Background(), inst.ID)
		if err != nil {
			t.Fatalf("get upgraded: %v", err)
		}
		if got.BundleVersion != "2.0.0" {
			t.Errorf("version = %q, want 2.0.0", got.BundleVersion)
		}
		if v, _ := got.Properties.Get("migrated"); v != true {
			t.Error("upgraded instance missing migration marker")
		}
	}

	untouched, err := fx.store.GetInstance(context.Background(), current.ID)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if untouched.Properties.Has("migrated") {
		t.Error("version-equal instance was upgraded")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.upgraded) != 2 {
		t.Errorf("upgrade hook notifications = %d, want 2", len(rec.upgraded))
	}
}

func TestUpgradeAllPanicIsolated(t *testing.T) {
	var panicID id.InstanceID
	b := &scriptBundle{
		desc: bundle.Descriptor{ID: "mig", Version: "2.0.0"},
		upgrade: func(ctx context.Context, inst *instance.Instance) (*instance.Instance, error) {
			if inst.ID == panicID {
				panic("bad migration")
			}
			return inst, nil
		},
	}
	fx := newFixture(t, b)
	seeded := seedInstances(t, fx.store, "mig", "1.0.0", 2)
	panicID = seeded[0].ID

	res, err := fx.engine.UpgradeAll(context.Background(), "mig")
	if err != nil {
		t.Fatalf("UpgradeAll: %v", err)
	}
	if res.Attempted != 2 || res.Succeeded != 1 {
		t.Fatalf("result = %+v, want 2 attempted, 1 succeeded", res)
	}

	got, err := fx.store.GetInstance(context.Background(), panicID)
	if err != nil {
		t.Fatalf("get panicked instance: %v", err)
	}
	if got.BundleVersion != "1.0.0" {
		t.Errorf("panicked instance version = %q, want unchanged 1.0.0", got.BundleVersion)
	}
}

func TestUpgradeAllUnknownBundle(t *testing.T) {
	fx := newFixture(t, nil)
	_, err := fx.engine.UpgradeAll(context.Background(), "ghost")
	if !errors.Is(err, bundles.ErrBundleNotFound) {
		t.Fatalf("err = %v, want ErrBundleNotFound", err)
	}
}

func TestUpgradeAllBlankBundleID(t *testing.T) {
	fx := newFixture(t, nil)
	_, err := fx.engine.UpgradeAll(context.Background(), "")
	if !errors.Is(err, bundles.ErrEmptyBundleID) {
		t.Fatalf("err = %v, want ErrEmptyBundleID", err)
	}
}

func TestProcessorAdapter(t *testing.T) {
	b := &scriptBundle{desc: bundle.Descriptor{ID: "listener", Version: "1.0.0"}}
	fx := newFixture(t, b)
	seedInstances(t, fx.store, "listener", "1.0.0", 1)

	p := fx.engine.Processor()
	if p.Name() == "" {
		t.Fatal("processor has empty name")
	}

	mgr := event.NewManager(discardLogger())
	if err := mgr.RegisterProcessor(p); err != nil {
		t.Fatalf("register processor: %v", err)
	}
	mgr.Dispatch(context.Background(), event.NewEntityEvent("thing", "t-1", event.ChangeCreated))

	if b.calls() != 1 {
		t.Errorf("invocations = %d, want 1", b.calls())
	}
}
