package fanout

import (
	"time"

	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/event"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

// Property keys injected into an instance before it is handed to a
// bundle. Underscore-prefixed keys are reserved for engine context and
// may shadow caller-set properties of the same name.
const (
	PropEntityType     = "_entityType"
	PropEntityID       = "_entityId"
	PropEventType      = "_eventType"
	PropEventTimestamp = "_eventTimestamp"

	PropRecurringJobName        = "_recurringJobName"
	PropRecurringJobDescription = "_recurringJobDescription"
	PropExecutionTimestamp      = "_executionTimestamp"

	entityDataPrefix = "_entity_"
	metadataPrefix   = "_meta_"
	jobParamPrefix   = "_job_"
)

// enrichWithEntityEvent returns a copy of inst carrying the event
// context: the four fixed keys, one "_entity_{k}" per entity data
// field, and one "_meta_{k}" per metadata field. The original instance
// is never touched.
func enrichWithEntityEvent(inst *instance.Instance, evt *event.EntityEvent) *instance.Instance {
	out := inst.Clone()
	out.Properties.Set(PropEntityType, evt.EntityType)
	out.Properties.Set(PropEntityID, evt.EntityID)
	out.Properties.Set(PropEventType, string(evt.EventType))
	out.Properties.Set(PropEventTimestamp, evt.Timestamp)
	for k, v := range evt.EntityData {
		out.Properties.Set(entityDataPrefix+k, v)
	}
	for k, v := range evt.Metadata {
		out.Properties.Set(metadataPrefix+k, v)
	}
	return out
}

// enrichWithRecurringJob returns a copy of inst carrying the job
// context: name, description, execution timestamp, and one "_job_{k}"
// per caller-supplied parameter.
func enrichWithRecurringJob(inst *instance.Instance, job bundle.RecurringJob, params map[string]any, executedAt time.Time) *instance.Instance {
	out := inst.Clone()
	out.Properties.Set(PropRecurringJobName, job.Name)
	out.Properties.Set(PropRecurringJobDescription, job.Description)
	out.Properties.Set(PropExecutionTimestamp, executedAt)
	for k, v := range params {
		out.Properties.Set(jobParamPrefix+k, v)
	}
	return out
}
