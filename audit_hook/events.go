package audithook

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionInstanceProcessed = "instance.processed"
	ActionInstanceFailed    = "instance.failed"
	ActionInstanceUpgraded  = "instance.upgraded"
	ActionBundleLoaded      = "bundle.loaded"
	ActionEventDispatched   = "event.dispatched"
	ActionRecurringJobFired = "recurring_job.fired"
)

// Audit event categories group related actions.
const (
	CategoryInstance = "bundles.instance"
	CategoryBundle   = "bundles.bundle"
	CategoryEvent    = "bundles.event"
	CategorySchedule = "bundles.schedule"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceInstance = "instance"
	ResourceBundle   = "bundle"
	ResourceEvent    = "entity_event"
	ResourceJob      = "recurring_job"
)

// AllActions returns every action this hook can emit.
func AllActions() []string {
	return []string{
		ActionInstanceProcessed,
		ActionInstanceFailed,
		ActionInstanceUpgraded,
		ActionBundleLoaded,
		ActionEventDispatched,
		ActionRecurringJobFired,
	}
}
