package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/schedule"
)

// RegisterSchedule persists a new schedule entry. The job-key hash
// gives idempotent registration per (bundle, job) pair.
func (s *Store) RegisterSchedule(ctx context.Context, entry *schedule.Entry) error {
	claimed, err := s.client.HSetNX(ctx, scheduleJobKeysKey, entry.JobKey(), entry.ID.String()).Result()
	if err != nil {
		return fmt.Errorf("bundles/redis: claim job key: %w", err)
	}
	if !claimed {
		return bundles.ErrDuplicateSchedule
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("bundles/redis: marshal schedule: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, scheduleKey(entry.ID.String()), data, 0)
	pipe.SAdd(ctx, scheduleIDsKey, entry.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bundles/redis: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	data, err := s.client.Get(ctx, scheduleKey(scheduleID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, bundles.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("bundles/redis: get schedule: %w", err)
	}

	var entry schedule.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("bundles/redis: unmarshal schedule: %w", err)
	}
	return &entry, nil
}

// ListSchedules returns all schedule entries.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("bundles/redis: list schedule ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, scheduleID := range ids {
		keys[i] = scheduleKey(scheduleID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("bundles/redis: fetch schedules: %w", err)
	}

	entries := make([]*schedule.Entry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Warn("dangling schedule id", "schedule_id", ids[i])
			continue
		}
		var entry schedule.Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("bundles/redis: unmarshal schedule: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// UpdateSchedule persists changes to an existing schedule entry.
func (s *Store) UpdateSchedule(ctx context.Context, entry *schedule.Entry) error {
	cp := *entry
	cp.Touch()
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("bundles/redis: marshal schedule: %w", err)
	}

	updated, err := s.client.SetXX(ctx, scheduleKey(entry.ID.String()), data, 0).Result()
	if err != nil {
		return fmt.Errorf("bundles/redis: update schedule: %w", err)
	}
	if !updated {
		return bundles.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule entry and frees its job key.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	entry, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, scheduleKey(scheduleID.String()))
	pipe.SRem(ctx, scheduleIDsKey, scheduleID.String())
	pipe.HDel(ctx, scheduleJobKeysKey, entry.JobKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bundles/redis: delete schedule: %w", err)
	}
	return nil
}
