package redis

// Redis key naming conventions. All keys are prefixed with "bundles:"
// to avoid collisions.

const keyPrefix = "bundles:"

// instanceKey returns the key for an instance document: bundles:instance:{id}
func instanceKey(id string) string { return keyPrefix + "instance:" + id }

// bundleIndexKey returns the Sorted Set indexing a bundle's instances
// by insertion sequence: bundles:bundle_idx:{bundleID}
func bundleIndexKey(bundleID string) string { return keyPrefix + "bundle_idx:" + bundleID }

// instanceSeqKey is the counter producing insertion sequence numbers.
const instanceSeqKey = keyPrefix + "instance_seq"

// instanceBundleKey maps instance IDs to their bundle so lookups do
// not need to scan every bundle index.
const instanceBundleKey = keyPrefix + "instance_bundle"

// scheduleKey returns the key for a schedule entry: bundles:schedule:{id}
func scheduleKey(id string) string { return keyPrefix + "schedule:" + id }

// scheduleIDsKey is the Set tracking all schedule IDs for enumeration.
const scheduleIDsKey = keyPrefix + "schedule_ids"

// scheduleJobKeysKey maps job keys to schedule IDs for duplicate
// detection.
const scheduleJobKeysKey = keyPrefix + "schedule_job_keys"
