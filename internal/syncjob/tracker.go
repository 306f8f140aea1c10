package syncjob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/shared"
	"github.com/desertthunder/subsync/internal/statestore"
)

// Tracker owns the sync job state machine. All job record mutations flow
// through it: admission creates records, outcomes advance them, and the two
// read paths serve client polling.
//
// Writers do whole-record read-modify-write against the state store, so
// concurrent outcome updates for the same job can race (last writer wins on
// the full record). The completion check is best-effort under that model.
type Tracker struct {
	store  statestore.StateStore
	logger *log.Logger
	jobTTL time.Duration
}

// NewTracker creates a Tracker. jobTTL is the retention window for job
// records; it is refreshed on every update.
func NewTracker(store statestore.StateStore, logger *log.Logger, jobTTL time.Duration) *Tracker {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if jobTTL <= 0 {
		jobTTL = statestore.DefaultJobTTL
	}

	return &Tracker{
		store:  store,
		logger: shared.WithLogger(logger, "component", "tracker"),
		jobTTL: jobTTL,
	}
}

// SaveJob persists the job record with its TTL refreshed to the full
// retention window.
func (t *Tracker) SaveJob(ctx context.Context, job *models.SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.JobID, err)
	}
	if err := t.store.Put(ctx, statestore.JobStatusKey(job.JobID), string(data), t.jobTTL); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.JobID, err)
	}
	return nil
}

// LoadJob fetches a job record. A missing or expired record returns ok=false
// without error; an unparseable record is an error.
func (t *Tracker) LoadJob(ctx context.Context, jobID string) (*models.SyncJob, bool, error) {
	raw, ok, err := t.store.Get(ctx, statestore.JobStatusKey(jobID))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var job models.SyncJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, false, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &job, true, nil
}

// RecordOutcome applies one per-subscription outcome to a job and persists
// the updated record. A missing job record (already expired via TTL) is a
// logged no-op, never an error. When the outcome completes the job, the
// user's active-job marker is deleted so a new sync can be admitted.
func (t *Tracker) RecordOutcome(ctx context.Context, jobID, subscriptionID string, success bool, itemsFound int, errMsg string) error {
	job, ok, err := t.LoadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		t.logger.Warn("job record missing, outcome dropped", "jobId", jobID, "subscriptionId", subscriptionID)
		return nil
	}

	advance(job, subscriptionID, success, itemsFound, errMsg, time.Now())

	if err := t.SaveJob(ctx, job); err != nil {
		return err
	}

	if job.Status == models.JobCompleted {
		if err := t.store.Delete(ctx, statestore.ActiveJobKey(job.UserID)); err != nil {
			t.logger.Warn("failed to clear active job marker", "jobId", jobID, "userId", job.UserID, "err", err)
		}
	}
	return nil
}

// advance applies one outcome to a job record in memory. Shared by the
// consumer's incremental updates and admission's synchronous fallback.
//
// Status only moves forward: the first outcome promotes pending to
// processing, and completed >= total promotes to completed (terminal).
func advance(job *models.SyncJob, subscriptionID string, success bool, itemsFound int, errMsg string, now time.Time) {
	job.Completed++
	if success {
		job.Succeeded++
		job.ItemsFound += itemsFound
	} else {
		job.Failed++
		if errMsg != "" {
			job.Errors = append(job.Errors, models.SyncError{SubscriptionID: subscriptionID, Error: errMsg})
		}
	}

	if job.Status == models.JobPending {
		job.Status = models.JobProcessing
	}
	if job.Completed >= job.Total {
		job.Status = models.JobCompleted
	}
	job.UpdatedAt = now
}

// JobStatus returns the polling shape for a job. Missing jobs report the
// not_found status rather than an error; expiry via TTL is an expected
// outcome of the retention design.
func (t *Tracker) JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	job, ok, err := t.LoadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &models.JobStatusResponse{
			JobID:  jobID,
			Status: models.JobNotFound,
			Errors: []models.SyncError{},
		}, nil
	}

	errs := job.Errors
	if errs == nil {
		errs = []models.SyncError{}
	}

	return &models.JobStatusResponse{
		JobID:      job.JobID,
		Status:     job.Status,
		Total:      job.Total,
		Completed:  job.Completed,
		Succeeded:  job.Succeeded,
		Failed:     job.Failed,
		ItemsFound: job.ItemsFound,
		Progress:   job.Progress(),
		Errors:     errs,
	}, nil
}

// ActiveJob answers whether the user has a sync in flight. The marker is a
// dedup pointer, not authoritative state: a marker referencing a missing or
// already-completed job reads as not-in-progress.
func (t *Tracker) ActiveJob(ctx context.Context, userID string) (*models.ActiveJobResponse, error) {
	jobID, ok, err := t.store.Get(ctx, statestore.ActiveJobKey(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &models.ActiveJobResponse{InProgress: false, JobID: nil}, nil
	}

	job, ok, err := t.LoadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok || job.Status == models.JobCompleted {
		return &models.ActiveJobResponse{InProgress: false, JobID: nil}, nil
	}

	return &models.ActiveJobResponse{
		InProgress: true,
		JobID:      &jobID,
		Progress: &models.ActiveJobProgress{
			Total:     job.Total,
			Completed: job.Completed,
			Status:    job.Status,
		},
	}, nil
}
