package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/schedule"
)

// RegisterSchedule persists a new schedule entry. The unique index on
// job_key makes repeated registration fail with ErrDuplicateSchedule.
func (s *Store) RegisterSchedule(ctx context.Context, entry *schedule.Entry) error {
	m := toScheduleModel(entry)
	if _, err := s.db.Collection(colSchedules).InsertOne(ctx, m); err != nil {
		if isDuplicateKey(err) {
			return bundles.ErrDuplicateSchedule
		}
		return fmt.Errorf("bundles/mongo: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	var m scheduleModel
	err := s.db.Collection(colSchedules).
		FindOne(ctx, bson.M{"_id": scheduleID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bundles.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("bundles/mongo: get schedule: %w", err)
	}
	return fromScheduleModel(&m)
}

// ListSchedules returns all schedule entries.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	cursor, err := s.db.Collection(colSchedules).
		Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("bundles/mongo: list schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*schedule.Entry
	for cursor.Next(ctx) {
		var m scheduleModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("bundles/mongo: decode schedule: %w", err)
		}
		entry, convErr := fromScheduleModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		entries = append(entries, entry)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("bundles/mongo: list schedules cursor: %w", err)
	}
	return entries, nil
}

// UpdateSchedule persists changes to an existing schedule entry.
func (s *Store) UpdateSchedule(ctx context.Context, entry *schedule.Entry) error {
	m := toScheduleModel(entry)
	m.UpdatedAt = time.Now().UTC()

	res, err := s.db.Collection(colSchedules).
		ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("bundles/mongo: update schedule: %w", err)
	}
	if res.MatchedCount == 0 {
		return bundles.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule entry.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	res, err := s.db.Collection(colSchedules).
		DeleteOne(ctx, bson.M{"_id": scheduleID.String()})
	if err != nil {
		return fmt.Errorf("bundles/mongo: delete schedule: %w", err)
	}
	if res.DeletedCount == 0 {
		return bundles.ErrScheduleNotFound
	}
	return nil
}
