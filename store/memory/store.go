// Package memory provides a fully in-memory store.Store for
// development and testing.
package memory

import (
	"context"
	"sync"
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
	"github.com/jhosm/ProductBundles-sub000/schedule"
	"github.com/jhosm/ProductBundles-sub000/store"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. Safe for
// concurrent access. Pages are served in insertion order, which is the
// store's natural iteration order.
type Store struct {
	mu sync.RWMutex

	instances map[id.InstanceID]*instance.Instance
	// order preserves instance insertion order for stable pagination.
	order []id.InstanceID

	schedules   map[id.ScheduleID]*schedule.Entry
	scheduleKey map[string]id.ScheduleID
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		instances:   make(map[id.InstanceID]*instance.Instance),
		schedules:   make(map[id.ScheduleID]*schedule.Entry),
		scheduleKey: make(map[string]id.ScheduleID),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// CreateInstance persists a new instance.
func (m *Store) CreateInstance(_ context.Context, inst *instance.Instance) error {
	if inst == nil {
		return bundles.ErrNilInstance
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[inst.ID]; exists {
		return bundles.ErrInstanceExists
	}
	m.instances[inst.ID] = inst.Clone()
	m.order = append(m.order, inst.ID)
	return nil
}

// GetInstance retrieves an instance by ID.
func (m *Store) GetInstance(_ context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[instanceID]
	if !ok {
		return nil, bundles.ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

// UpdateInstance persists changes to an existing instance. Last writer
// wins; there is no optimistic locking.
func (m *Store) UpdateInstance(_ context.Context, inst *instance.Instance) error {
	if inst == nil {
		return bundles.ErrNilInstance
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[inst.ID]; !ok {
		return bundles.ErrInstanceNotFound
	}
	cp := inst.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.instances[inst.ID] = cp
	return nil
}

// DeleteInstance removes an instance by ID.
func (m *Store) DeleteInstance(_ context.Context, instanceID id.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[instanceID]; !ok {
		return bundles.ErrInstanceNotFound
	}
	delete(m.instances, instanceID)
	for i, existing := range m.order {
		if existing == instanceID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// InstanceExists reports whether an instance with the given ID exists.
func (m *Store) InstanceExists(_ context.Context, instanceID id.InstanceID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.instances[instanceID]
	return ok, nil
}

// ListInstancesByBundle returns one page of the instances bound to the
// given bundle, in insertion order.
func (m *Store) ListInstancesByBundle(_ context.Context, bundleID string, req instance.PageRequest) (*instance.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*instance.Instance, 0, len(m.order))
	for _, instanceID := range m.order {
		if inst := m.instances[instanceID]; inst.BundleID == bundleID {
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

// CountInstances returns the total number of persisted instances.
func (m *Store) CountInstances(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances), nil
}

// CountInstancesByBundle returns the number of instances bound to the
// given bundle.
func (m *Store) CountInstancesByBundle(_ context.Context, bundleID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, inst := range m.instances {
		if inst.BundleID == bundleID {
			n++
		}
	}
	return n, nil
}

// RegisterSchedule persists a new schedule entry, keyed by JobKey.
func (m *Store) RegisterSchedule(_ context.Context, entry *schedule.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.scheduleKey[entry.JobKey()]; exists {
		return bundles.ErrDuplicateSchedule
	}
	cp := *entry
	m.schedules[entry.ID] = &cp
	m.scheduleKey[entry.JobKey()] = entry.ID
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (m *Store) GetSchedule(_ context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.schedules[scheduleID]
	if !ok {
		return nil, bundles.ErrScheduleNotFound
	}
	cp := *entry
	return &cp, nil
}

// ListSchedules returns all schedule entries.
func (m *Store) ListSchedules(_ context.Context) ([]*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*schedule.Entry, 0, len(m.schedules))
	for _, entry := range m.schedules {
		cp := *entry
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateSchedule persists changes to an existing schedule entry.
func (m *Store) UpdateSchedule(_ context.Context, entry *schedule.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[entry.ID]; !ok {
		return bundles.ErrScheduleNotFound
	}
	cp := *entry
	cp.UpdatedAt = time.Now().UTC()
	m.schedules[entry.ID] = &cp
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (m *Store) DeleteSchedule(_ context.Context, scheduleID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.schedules[scheduleID]
	if !ok {
		return bundles.ErrScheduleNotFound
	}
	delete(m.scheduleKey, entry.JobKey())
	delete(m.schedules, scheduleID)
	return nil
}
