package statestore

import "time"

// Key schema. These patterns are part of the store's external contract and
// must stay stable across releases.
const (
	jobStatusPrefix = "sync-job:status:"
	activeJobPrefix = "sync-job:active:"
	rateLimitPrefix = "sync-all:"
	dlqEntryPrefix  = "sync-dlq:entry:"

	// DLQIndexKey holds the single versioned most-recent-first id list.
	DLQIndexKey = "sync-dlq:index"
)

// Reference TTLs. Production values come from config; these are the
// documented defaults.
const (
	DefaultJobTTL    = 600 * time.Second
	DefaultActiveTTL = 300 * time.Second
	DefaultCooldown  = 120 * time.Second
	DefaultDLQTTL    = 604800 * time.Second
)

// JobStatusKey returns the key holding a [models.SyncJob] record.
func JobStatusKey(jobID string) string {
	return jobStatusPrefix + jobID
}

// ActiveJobKey returns the per-user dedup marker key (value: job id).
func ActiveJobKey(userID string) string {
	return activeJobPrefix + userID
}

// RateLimitKey returns the per-user cooldown marker key (value: ms-epoch of
// the last admission).
func RateLimitKey(userID string) string {
	return rateLimitPrefix + userID
}

// DLQEntryKey returns the key holding one captured dead-letter entry.
func DLQEntryKey(id string) string {
	return dlqEntryPrefix + id
}
