package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
	"github.com/jhosm/ProductBundles-sub000/schedule"
)

// instanceModel maps instance.Instance to a bundle_instances document.
// Properties are stored as a JSON string rather than a nested document
// because BSON documents do not guarantee the key order the engine
// promises to bundles.
type instanceModel struct {
	ID            string    `bson:"_id"`
	BundleID      string    `bson:"bundle_id"`
	BundleVersion string    `bson:"bundle_version"`
	Properties    string    `bson:"properties"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func toInstanceModel(inst *instance.Instance) (*instanceModel, error) {
	props, err := json.Marshal(inst.Properties)
	if err != nil {
		return nil, fmt.Errorf("bundles/mongo: marshal properties: %w", err)
	}
	return &instanceModel{
		ID:            inst.ID.String(),
		BundleID:      inst.BundleID,
		BundleVersion: inst.BundleVersion,
		Properties:    string(props),
		CreatedAt:     inst.CreatedAt,
		UpdatedAt:     inst.UpdatedAt,
	}, nil
}

func fromInstanceModel(m *instanceModel) (*instance.Instance, error) {
	parsedID, err := id.ParseInstanceID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("bundles/mongo: parse instance id %q: %w", m.ID, err)
	}

	props := instance.NewProperties()
	if m.Properties != "" {
		if err := json.Unmarshal([]byte(m.Properties), props); err != nil {
			return nil, fmt.Errorf("bundles/mongo: unmarshal properties: %w", err)
		}
	}

	return &instance.Instance{
		Entity: bundles.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            parsedID,
		BundleID:      m.BundleID,
		BundleVersion: m.BundleVersion,
		Properties:    props,
	}, nil
}

// scheduleModel maps schedule.Entry to a bundle_schedules document.
type scheduleModel struct {
	ID          string         `bson:"_id"`
	JobKey      string         `bson:"job_key"`
	BundleID    string         `bson:"bundle_id"`
	JobName     string         `bson:"job_name"`
	Schedule    string         `bson:"schedule"`
	Description string         `bson:"description,omitempty"`
	Queue       string         `bson:"queue,omitempty"`
	Params      map[string]any `bson:"params,omitempty"`
	LastRunAt   *time.Time     `bson:"last_run_at,omitempty"`
	NextRunAt   *time.Time     `bson:"next_run_at,omitempty"`
	Enabled     bool           `bson:"enabled"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

func toScheduleModel(entry *schedule.Entry) *scheduleModel {
	return &scheduleModel{
		ID:          entry.ID.String(),
		JobKey:      entry.JobKey(),
		BundleID:    entry.BundleID,
		JobName:     entry.JobName,
		Schedule:    entry.Schedule,
		Description: entry.Description,
		Queue:       entry.Queue,
		Params:      entry.Params,
		LastRunAt:   entry.LastRunAt,
		NextRunAt:   entry.NextRunAt,
		Enabled:     entry.Enabled,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
}

func fromScheduleModel(m *scheduleModel) (*schedule.Entry, error) {
	parsedID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("bundles/mongo: parse schedule id %q: %w", m.ID, err)
	}

	return &schedule.Entry{
		Entity: bundles.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		BundleID:    m.BundleID,
		JobName:     m.JobName,
		Schedule:    m.Schedule,
		Description: m.Description,
		Queue:       m.Queue,
		Params:      m.Params,
		LastRunAt:   m.LastRunAt,
		NextRunAt:   m.NextRunAt,
		Enabled:     m.Enabled,
	}, nil
}
