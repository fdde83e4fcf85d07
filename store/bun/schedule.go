package bunstore

import (
	"context"
	"fmt"
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/schedule"
)

// RegisterSchedule persists a new schedule entry. The unique index on
// job_key makes repeated registration fail with ErrDuplicateSchedule.
func (s *Store) RegisterSchedule(ctx context.Context, entry *schedule.Entry) error {
	m, err := toScheduleModel(entry)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return bundles.ErrDuplicateSchedule
		}
		return fmt.Errorf("bundles/bun: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	m := new(scheduleModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", scheduleID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bundles.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("bundles/bun: get schedule: %w", err)
	}
	return fromScheduleModel(m)
}

// ListSchedules returns all schedule entries.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	var models []scheduleModel
	err := s.db.NewSelect().Model(&models).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bundles/bun: list schedules: %w", err)
	}

	entries := make([]*schedule.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromScheduleModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("bundles/bun: list schedules convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// UpdateSchedule persists changes to an existing schedule entry.
func (s *Store) UpdateSchedule(ctx context.Context, entry *schedule.Entry) error {
	m, err := toScheduleModel(entry)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()

	res, err := s.db.NewUpdate().Model(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bundles/bun: update schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bundles/bun: update schedule rows affected: %w", err)
	}
	if affected == 0 {
		return bundles.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	res, err := s.db.NewDelete().Model((*scheduleModel)(nil)).
		Where("id = ?", scheduleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bundles/bun: delete schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bundles/bun: delete schedule rows affected: %w", err)
	}
	if affected == 0 {
		return bundles.ErrScheduleNotFound
	}
	return nil
}
