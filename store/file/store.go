// Package file provides a store.Store backed by plain JSON documents
// on the local filesystem: one file per instance, grouped by bundle,
// and one file per schedule entry. Writes go through a temp file and
// rename so readers never see a partial document.
//
// Intended for single-process deployments and local development where
// a database is overkill but state must survive restarts.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
	"github.com/jhosm/ProductBundles-sub000/schedule"
	"github.com/jhosm/ProductBundles-sub000/store"
)

var _ store.Store = (*Store)(nil)

const (
	instancesDir = "instances"
	schedulesDir = "schedules"
	docExt       = ".json"
)

// Store persists instances and schedules as JSON files under a root
// directory. Safe for concurrent use within one process; it does not
// coordinate across processes.
type Store struct {
	root string
	mu   sync.RWMutex
}

// New creates a Store rooted at dir, creating the directory tree if
// needed.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("file: blank root directory")
	}
	for _, sub := range []string{instancesDir, schedulesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("file: create %s dir: %w", sub, err)
		}
	}
	return &Store{root: dir}, nil
}

// Migrate is a no-op; the directory tree is created by New.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the root directory is still accessible.
func (s *Store) Ping(_ context.Context) error {
	_, err := os.Stat(s.root)
	return err
}

// Close is a no-op for the file store.
func (s *Store) Close() error { return nil }

// bundleDir maps a bundle ID to its directory, escaping characters
// that are not filesystem safe.
func (s *Store) bundleDir(bundleID string) string {
	return filepath.Join(s.root, instancesDir, url.PathEscape(bundleID))
}

func (s *Store) instancePath(bundleID string, instanceID id.InstanceID) string {
	return filepath.Join(s.bundleDir(bundleID), instanceID.String()+docExt)
}

func (s *Store) schedulePath(scheduleID id.ScheduleID) string {
	return filepath.Join(s.root, schedulesDir, scheduleID.String()+docExt)
}

// writeDoc writes v as JSON via a temp file and rename.
func writeDoc(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readDoc(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// findInstancePath locates an instance file across bundle directories.
func (s *Store) findInstancePath(instanceID id.InstanceID) (string, bool) {
	dirs, err := os.ReadDir(filepath.Join(s.root, instancesDir))
	if err != nil {
		return "", false
	}
	name := instanceID.String() + docExt
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		path := filepath.Join(s.root, instancesDir, d.Name(), name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// CreateInstance persists a new instance document.
func (s *Store) CreateInstance(_ context.Context, inst *instance.Instance) error {
	if inst == nil {
		return bundles.ErrNilInstance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.findInstancePath(inst.ID); found {
		return bundles.ErrInstanceExists
	}
	dir := s.bundleDir(inst.BundleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: create bundle dir: %w", err)
	}
	return writeDoc(s.instancePath(inst.BundleID, inst.ID), inst)
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(_ context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, found := s.findInstancePath(instanceID)
	if !found {
		return nil, bundles.ErrInstanceNotFound
	}
	var inst instance.Instance
	if err := readDoc(path, &inst); err != nil {
		return nil, fmt.Errorf("file: read instance %s: %w", instanceID, err)
	}
	return &inst, nil
}

// UpdateInstance persists changes to an existing instance. Last writer
// wins.
func (s *Store) UpdateInstance(_ context.Context, inst *instance.Instance) error {
	if inst == nil {
		return bundles.ErrNilInstance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, found := s.findInstancePath(inst.ID)
	if !found {
		return bundles.ErrInstanceNotFound
	}
	cp := inst.Clone()
	cp.UpdatedAt = time.Now().UTC()
	return writeDoc(path, cp)
}

// DeleteInstance removes an instance document.
func (s *Store) DeleteInstance(_ context.Context, instanceID id.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, found := s.findInstancePath(instanceID)
	if !found {
		return bundles.ErrInstanceNotFound
	}
	return os.Remove(path)
}

// InstanceExists reports whether an instance document exists.
func (s *Store) InstanceExists(_ context.Context, instanceID id.InstanceID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := s.findInstancePath(instanceID)
	return found, nil
}

// ListInstancesByBundle returns one page of a bundle's instances. The
// natural order is the lexicographic file-name order; instance IDs
// sort by creation time, so this is effectively insertion order.
func (s *Store) ListInstancesByBundle(_ context.Context, bundleID string, req instance.PageRequest) (*instance.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.instanceFiles(bundleID)
	if err != nil {
		return nil, err
	}

	skip := req.Skip()
	if skip >= len(names) {
		return instance.NewPage(nil, req), nil
	}
	end := skip + req.Size
	if end > len(names) {
		end = len(names)
	}

	dir := s.bundleDir(bundleID)
	items := make([]*instance.Instance, 0, end-skip)
	for _, name := range names[skip:end] {
		var inst instance.Instance
		if err := readDoc(filepath.Join(dir, name), &inst); err != nil {
			return nil, fmt.Errorf("file: read instance doc %s: %w", name, err)
		}
		items = append(items, &inst)
	}
	return instance.NewPage(items, req), nil
}

func (s *Store) instanceFiles(bundleID string) ([]string, error) {
	entries, err := os.ReadDir(s.bundleDir(bundleID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file: list bundle dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), docExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CountInstances returns the total number of instance documents.
func (s *Store) CountInstances(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirs, err := os.ReadDir(filepath.Join(s.root, instancesDir))
	if err != nil {
		return 0, fmt.Errorf("file: list instances dir: %w", err)
	}

	total := 0
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		bundleID, err := url.PathUnescape(d.Name())
		if err != nil {
			bundleID = d.Name()
		}
		names, err := s.instanceFiles(bundleID)
		if err != nil {
			return 0, err
		}
		total += len(names)
	}
	return total, nil
}

// CountInstancesByBundle returns the number of documents for one
// bundle.
func (s *Store) CountInstancesByBundle(_ context.Context, bundleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.instanceFiles(bundleID)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// RegisterSchedule persists a new schedule entry, rejecting duplicate
// job keys.
func (s *Store) RegisterSchedule(_ context.Context, entry *schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readSchedules()
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.JobKey() == entry.JobKey() {
			return bundles.ErrDuplicateSchedule
		}
	}
	return writeDoc(s.schedulePath(entry.ID), entry)
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(_ context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry schedule.Entry
	if err := readDoc(s.schedulePath(scheduleID), &entry); err != nil {
		if os.IsNotExist(err) {
			return nil, bundles.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("file: read schedule %s: %w", scheduleID, err)
	}
	return &entry, nil
}

// ListSchedules returns all schedule entries.
func (s *Store) ListSchedules(_ context.Context) ([]*schedule.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readSchedules()
}

func (s *Store) readSchedules() ([]*schedule.Entry, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, schedulesDir))
	if err != nil {
		return nil, fmt.Errorf("file: list schedules dir: %w", err)
	}

	out := make([]*schedule.Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), docExt) {
			continue
		}
		var entry schedule.Entry
		if err := readDoc(filepath.Join(s.root, schedulesDir, e.Name()), &entry); err != nil {
			return nil, fmt.Errorf("file: read schedule doc %s: %w", e.Name(), err)
		}
		out = append(out, &entry)
	}
	return out, nil
}

// UpdateSchedule persists changes to an existing schedule entry.
func (s *Store) UpdateSchedule(_ context.Context, entry *schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.schedulePath(entry.ID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return bundles.ErrScheduleNotFound
		}
		return err
	}
	cp := *entry
	cp.UpdatedAt = time.Now().UTC()
	return writeDoc(path, &cp)
}

// DeleteSchedule removes a schedule entry by ID.
func (s *Store) DeleteSchedule(_ context.Context, scheduleID id.ScheduleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.schedulePath(scheduleID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return bundles.ErrScheduleNotFound
		}
		return err
	}
	return os.Remove(path)
}
