// Package audithook bridges bundle lifecycle events to an immutable
// audit trail backend.
//
// Every instance, bundle, event, and recurring-job lifecycle hook emits
// a structured audit event through the [Recorder] interface. The hook
// assigns severity levels (info for normal operations, critical for
// failures) and rich metadata (bundle ID, event name, elapsed time,
// errors).
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return trail.Write(ctx, evt.Action, evt.Resource, evt.ResourceID, evt.Metadata)
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionInstanceFailed,
//	        audithook.ActionInstanceUpgraded,
//	    ),
//	)
package audithook
