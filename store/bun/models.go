package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
	"github.com/jhosm/ProductBundles-sub000/schedule"
)

// instanceModel maps instance.Instance to the bundle_instances table.
// Properties are stored as json (not jsonb) so the insertion order of
// keys survives the round trip.
type instanceModel struct {
	bun.BaseModel `bun:"table:bundle_instances"`

	ID            string    `bun:"id,pk"`
	BundleID      string    `bun:"bundle_id,notnull"`
	BundleVersion string    `bun:"bundle_version,notnull"`
	Properties    []byte    `bun:"properties,type:json"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toInstanceModel(inst *instance.Instance) (*instanceModel, error) {
	props, err := json.Marshal(inst.Properties)
	if err != nil {
		return nil, fmt.Errorf("bundles/bun: marshal properties: %w", err)
	}
	return &instanceModel{
		ID:            inst.ID.String(),
		BundleID:      inst.BundleID,
		BundleVersion: inst.BundleVersion,
		Properties:    props,
		CreatedAt:     inst.CreatedAt,
		UpdatedAt:     inst.UpdatedAt,
	}, nil
}

func fromInstanceModel(m *instanceModel) (*instance.Instance, error) {
	parsedID, err := id.ParseInstanceID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("bundles/bun: parse instance id %q: %w", m.ID, err)
	}

	props := instance.NewProperties()
	if len(m.Properties) > 0 {
		if err := json.Unmarshal(m.Properties, props); err != nil {
			return nil, fmt.Errorf("bundles/bun: unmarshal properties: %w", err)
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

// scheduleModel maps schedule.Entry to the bundle_schedules table. The
// job_key column carries a unique index for idempotent registration.
type scheduleModel struct {
	bun.BaseModel `bun:"table:bundle_schedules"`

	ID          string     `bun:"id,pk"`
	JobKey      string     `bun:"job_key,notnull,unique"`
	BundleID    string     `bun:"bundle_id,notnull"`
	JobName     string     `bun:"job_name,notnull"`
	Schedule    string     `bun:"schedule,notnull"`
	Description string     `bun:"description"`
	Queue       string     `bun:"queue"`
	Params      []byte     `bun:"params,type:jsonb"`
	LastRunAt   *time.Time `bun:"last_run_at"`
	NextRunAt   *time.Time `bun:"next_run_at"`
	Enabled     bool       `bun:"enabled,notnull,default:true"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toScheduleModel(entry *schedule.Entry) (*scheduleModel, error) {
	var params []byte
	if entry.Params != nil {
		var err error
		params, err = json.Marshal(entry.Params)
		if err != nil {
			return nil, fmt.Errorf("bundles/bun: marshal params: %w", err)
		}
	}
	return &scheduleModel{
		ID:          entry.ID.String(),
		JobKey:      entry.JobKey(),
		BundleID:    entry.BundleID,
		JobName:     entry.JobName,
		Schedule:    entry.Schedule,
		Description: entry.Description,
		Queue:       entry.Queue,
		Params:      params,
		LastRunAt:   entry.LastRunAt,
		NextRunAt:   entry.NextRunAt,
		Enabled:     entry.Enabled,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}, nil
}

func fromScheduleModel(m *scheduleModel) (*schedule.Entry, error) {
	parsedID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("bundles/bun: parse schedule id %q: %w", m.ID, err)
	}

	var params map[string]any
	if len(m.Params) > 0 {
		if err := json.Unmarshal(m.Params, &params); err != nil {
			return nil, fmt.Errorf("bundles/bun: unmarshal params: %w", err)
		}
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
		Params:      params,
		LastRunAt:   m.LastRunAt,
		NextRunAt:   m.NextRunAt,
		Enabled:     m.Enabled,
	}, nil
}
