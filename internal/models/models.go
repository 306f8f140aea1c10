package models

import (
	"fmt"
	"math"
	"time"
)

// Provider identifies a content provider. The set is closed: dispatch points
// switch over it exhaustively.
type Provider string

const (
	ProviderYouTube Provider = "YOUTUBE"
	ProviderSpotify Provider = "SPOTIFY"
)

// Providers returns all known providers.
func Providers() []Provider {
	return []Provider{ProviderYouTube, ProviderSpotify}
}

// ParseProvider converts a raw string into a Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderYouTube:
		return ProviderYouTube, nil
	case ProviderSpotify:
		return ProviderSpotify, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

func (p Provider) String() string {
	return string(p)
}

// JobStatus is the lifecycle state of a [SyncJob]. Transitions are forward
// only: pending to processing to completed.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"

	// JobNotFound is a read-side status for missing/expired jobs; it is never
	// stored.
	JobNotFound JobStatus = "not_found"
)

// SyncError records a per-subscription failure inside a job.
type SyncError struct {
	SubscriptionID string `json:"subscriptionId"`
	Error          string `json:"error"`
}

// SyncJob is the aggregate progress record for one admitted "sync all
// subscriptions" request. It is persisted as JSON in the state store under a
// TTL and mutated exclusively through the progress tracker.
//
// Invariants: Completed == Succeeded + Failed and Completed <= Total.
type SyncJob struct {
	JobID      string      `json:"jobId"`
	UserID     string      `json:"userId"`
	Total      int         `json:"total"`
	Completed  int         `json:"completed"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	ItemsFound int         `json:"itemsFound"`
	Status     JobStatus   `json:"status"`
	Errors     []SyncError `json:"errors"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Progress returns completion as a whole percentage, rounded. A job with
// Total == 0 is complete by definition and reports 100.
func (j *SyncJob) Progress() int {
	if j.Total == 0 {
		return 100
	}
	return int(math.Round(float64(j.Completed) / float64(j.Total) * 100))
}

// SyncQueueMessage is one per-subscription work unit. Immutable once
// enqueued; EnqueuedAt is milliseconds since the Unix epoch.
type SyncQueueMessage struct {
	JobID             string   `json:"jobId"`
	UserID            string   `json:"userId"`
	SubscriptionID    string   `json:"subscriptionId"`
	Provider          Provider `json:"provider"`
	ProviderChannelID string   `json:"providerChannelId"`
	EnqueuedAt        int64    `json:"enqueuedAt"`
}

// Validate checks that all required fields are present and the provider is a
// known value.
func (m *SyncQueueMessage) Validate() error {
	if m.JobID == "" || m.UserID == "" || m.SubscriptionID == "" || m.ProviderChannelID == "" {
		return fmt.Errorf("missing required field")
	}
	if _, err := ParseProvider(string(m.Provider)); err != nil {
		return err
	}
	return nil
}

// DLQUnknown is the sentinel substituted for fields of a dead-lettered
// message that could not be parsed.
const DLQUnknown = "unknown"

// DLQMessage is the best-effort reconstruction of a dead-lettered queue
// message. Fields that could not be recovered hold [DLQUnknown].
type DLQMessage struct {
	JobID             string `json:"jobId"`
	UserID            string `json:"userId"`
	SubscriptionID    string `json:"subscriptionId"`
	Provider          string `json:"provider"`
	ProviderChannelID string `json:"providerChannelId"`
	EnqueuedAt        int64  `json:"enqueuedAt"`
}

// DLQEntry is one captured dead-lettered message. Immutable once written;
// deleted only by explicit operator action or TTL expiry.
type DLQEntry struct {
	ID             string     `json:"id"`
	Message        DLQMessage `json:"message"`
	DeadLetteredAt int64      `json:"deadLetteredAt"`
	Attempts       int        `json:"attempts"`
	Environment    string     `json:"environment"`
}

// DLQSummary is the operational overview of captured entries. Oldest/newest
// are derived from the fetched recent set, so with a long index "oldest" is
// only accurate within the first 10 entries.
type DLQSummary struct {
	Count   int        `json:"count"`
	Recent  []DLQEntry `json:"recent"`
	Oldest  int64      `json:"oldest,omitempty"`
	Newest  int64      `json:"newest,omitempty"`
}

// JobStatusResponse is the shape clients poll for job progress.
type JobStatusResponse struct {
	JobID      string      `json:"jobId"`
	Status     JobStatus   `json:"status"`
	Total      int         `json:"total"`
	Completed  int         `json:"completed"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	ItemsFound int         `json:"itemsFound"`
	Progress   int         `json:"progress"`
	Errors     []SyncError `json:"errors"`
}

// ActiveJobProgress is the condensed progress block of [ActiveJobResponse].
type ActiveJobProgress struct {
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Status    JobStatus `json:"status"`
}

// ActiveJobResponse answers "does this user have a sync in flight?".
type ActiveJobResponse struct {
	InProgress bool               `json:"inProgress"`
	JobID      *string            `json:"jobId"`
	Progress   *ActiveJobProgress `json:"progress,omitempty"`
}

// InitiateResult is returned by sync admission.
type InitiateResult struct {
	JobID    string `json:"jobId"`
	Total    int    `json:"total"`
	Existing bool   `json:"existing"`
}

// Subscription is a channel/show a user follows, from the relational store.
type Subscription struct {
	ID                string
	UserID            string
	Provider          Provider
	ProviderChannelID string
	Title             string
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProviderConnection is a linked provider account for a user.
type ProviderConnection struct {
	ID          string
	UserID      string
	Provider    Provider
	AccessToken string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
