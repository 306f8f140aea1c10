package syncjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/queue"
	"github.com/desertthunder/subsync/internal/services"
	"github.com/desertthunder/subsync/internal/shared"
	"github.com/desertthunder/subsync/internal/statestore"
	"golang.org/x/time/rate"
)

// Options configures admission timing.
type Options struct {
	Cooldown  time.Duration // per-user rate limit window
	ActiveTTL time.Duration // dedup marker lifetime
	PollRate  float64       // provider calls per second in the synchronous fallback
}

// Service admits "refresh all subscriptions" requests: it rate limits,
// deduplicates against in-flight jobs, resolves the syncable subscription
// set, persists the job record, and fans one queue message out per
// subscription. When the queue is unavailable it processes the whole job
// synchronously in-process instead.
type Service struct {
	tracker *Tracker
	store   statestore.StateStore
	queue   queue.Queue
	subs    SubscriptionStore
	conns   ConnectionStore
	pollers PollerResolver
	logger  *log.Logger
	opts    Options
	now     func() time.Time
}

// NewService creates the admission service.
func NewService(tracker *Tracker, store statestore.StateStore, q queue.Queue, subs SubscriptionStore, conns ConnectionStore, pollers PollerResolver, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = statestore.DefaultCooldown
	}
	if opts.ActiveTTL <= 0 {
		opts.ActiveTTL = statestore.DefaultActiveTTL
	}
	if opts.PollRate <= 0 {
		opts.PollRate = 5
	}

	return &Service{
		tracker: tracker,
		store:   store,
		queue:   q,
		subs:    subs,
		conns:   conns,
		pollers: pollers,
		logger:  shared.WithLogger(logger, "component", "admission"),
		opts:    opts,
		now:     time.Now,
	}
}

// InitiateSync admits one sync-all request for userID.
//
// Returns a [shared.RateLimitedError] inside the cooldown window, the
// existing job (Existing=true) when one is still in flight, and otherwise a
// freshly admitted job.
func (s *Service) InitiateSync(ctx context.Context, userID string) (*models.InitiateResult, error) {
	if userID == "" {
		return nil, shared.ErrUserRequired
	}
	logger := shared.WithLogger(s.logger, "userId", userID)

	if err := s.checkRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	if existing, err := s.findActiveJob(ctx, userID); err != nil {
		return nil, err
	} else if existing != nil {
		logger.Info("sync already in flight, returning existing job", "jobId", existing.JobID)
		return &models.InitiateResult{JobID: existing.JobID, Total: existing.Total, Existing: true}, nil
	}

	subs, err := s.subs.ListActiveByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	conns, err := s.conns.ListActiveByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connections: %w", err)
	}

	connected := make(map[models.Provider]bool, len(conns))
	for _, conn := range conns {
		connected[conn.Provider] = true
	}

	var syncable []*models.Subscription
	for _, sub := range subs {
		if connected[sub.Provider] {
			syncable = append(syncable, sub)
		}
	}

	now := s.now()

	if len(syncable) == 0 {
		// nothing to do: persist an already-completed job so the client's
		// poll loop terminates immediately
		var errs []models.SyncError
		if len(subs) > 0 {
			errs = missingProviderErrors(subs, connected)
		}
		job := &models.SyncJob{
			JobID:     shared.GenerateID(),
			UserID:    userID,
			Status:    models.JobCompleted,
			Errors:    errs,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.tracker.SaveJob(ctx, job); err != nil {
			return nil, err
		}
		if err := s.refreshRateMarker(ctx, userID); err != nil {
			return nil, err
		}
		logger.Info("admitted empty sync job", "jobId", job.JobID, "subscriptions", len(subs))
		return &models.InitiateResult{JobID: job.JobID, Total: 0, Existing: false}, nil
	}

	job := &models.SyncJob{
		JobID:     shared.GenerateID(),
		UserID:    userID,
		Total:     len(syncable),
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tracker.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, statestore.ActiveJobKey(userID), job.JobID, s.opts.ActiveTTL); err != nil {
		return nil, fmt.Errorf("failed to set active job marker: %w", err)
	}
	if err := s.refreshRateMarker(ctx, userID); err != nil {
		return nil, err
	}

	if err := s.fanOut(ctx, job, syncable); err != nil {
		if errors.Is(err, shared.ErrQueueUnavailable) {
			logger.Info("queue unavailable, processing synchronously", "jobId", job.JobID, "total", job.Total)
			if err := s.processSynchronously(ctx, job, syncable); err != nil {
				return nil, err
			}
			return &models.InitiateResult{JobID: job.JobID, Total: job.Total, Existing: false}, nil
		}
		return nil, err
	}

	logger.Info("admitted sync job", "jobId", job.JobID, "total", job.Total)
	return &models.InitiateResult{JobID: job.JobID, Total: job.Total, Existing: false}, nil
}

// checkRateLimit enforces the per-user cooldown. The marker value is the
// ms-epoch of the last successful admission.
func (s *Service) checkRateLimit(ctx context.Context, userID string) error {
	raw, ok, err := s.store.Get(ctx, statestore.RateLimitKey(userID))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	last, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// unreadable marker: fail open, the marker TTL still bounds abuse
		return nil
	}

	elapsed := s.now().UnixMilli() - last
	cooldown := s.opts.Cooldown.Milliseconds()
	if elapsed < cooldown {
		remaining := cooldown - elapsed
		return &shared.RateLimitedError{RetryAfterSeconds: (remaining + 999) / 1000}
	}
	return nil
}

// findActiveJob returns the user's in-flight job, if the dedup marker points
// at one that is still live.
func (s *Service) findActiveJob(ctx context.Context, userID string) (*models.SyncJob, error) {
	jobID, ok, err := s.store.Get(ctx, statestore.ActiveJobKey(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	job, ok, err := s.tracker.LoadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok || job.Status == models.JobCompleted {
		// stale marker; admission proceeds and overwrites it
		return nil, nil
	}
	return job, nil
}

func (s *Service) refreshRateMarker(ctx context.Context, userID string) error {
	value := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.store.Put(ctx, statestore.RateLimitKey(userID), value, s.opts.Cooldown); err != nil {
		return fmt.Errorf("failed to set rate limit marker: %w", err)
	}
	return nil
}

// fanOut submits one queue message per syncable subscription as one batch.
func (s *Service) fanOut(ctx context.Context, job *models.SyncJob, syncable []*models.Subscription) error {
	enqueuedAt := s.now().UnixMilli()
	bodies := make([][]byte, len(syncable))
	for i, sub := range syncable {
		msg := models.SyncQueueMessage{
			JobID:             job.JobID,
			UserID:            job.UserID,
			SubscriptionID:    sub.ID,
			Provider:          sub.Provider,
			ProviderChannelID: sub.ProviderChannelID,
			EnqueuedAt:        enqueuedAt,
		}
		data, err := json.Marshal(&msg)
		if err != nil {
			return fmt.Errorf("failed to marshal queue message: %w", err)
		}
		bodies[i] = data
	}
	return s.queue.SendBatch(ctx, bodies)
}

// processSynchronously is the local/dev fallback: the same per-provider
// single/batched polling calls the consumer makes, but applied in-process
// with one terminal write instead of N incremental ones. Provider calls are
// paced by a token-bucket limiter.
func (s *Service) processSynchronously(ctx context.Context, job *models.SyncJob, syncable []*models.Subscription) error {
	limiter := rate.NewLimiter(rate.Limit(s.opts.PollRate), 1)

	byProvider := make(map[models.Provider][]*models.Subscription)
	for _, sub := range syncable {
		byProvider[sub.Provider] = append(byProvider[sub.Provider], sub)
	}

	now := s.now()
	for _, provider := range models.Providers() {
		group := byProvider[provider]
		if len(group) == 0 {
			continue
		}
		s.processGroupInline(ctx, job, provider, group, limiter, now)
	}

	if err := s.tracker.SaveJob(ctx, job); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, statestore.ActiveJobKey(job.UserID)); err != nil {
		s.logger.Warn("failed to clear active job marker", "jobId", job.JobID, "err", err)
	}

	s.logger.Info("synchronous sync finished",
		"jobId", job.JobID, "total", job.Total, "succeeded", job.Succeeded, "failed", job.Failed, "itemsFound", job.ItemsFound)
	return nil
}

func (s *Service) processGroupInline(ctx context.Context, job *models.SyncJob, provider models.Provider, group []*models.Subscription, limiter *rate.Limiter, now time.Time) {
	failGroup := func(errMsg string) {
		for _, sub := range group {
			advance(job, sub.ID, false, 0, errMsg, now)
		}
	}

	conn, err := s.conns.GetActive(job.UserID, provider)
	if err != nil {
		failGroup(err.Error())
		return
	}
	if conn == nil {
		failGroup(provider.String() + " not connected")
		return
	}

	poller, err := s.pollers.For(provider)
	if err != nil {
		failGroup(err.Error())
		return
	}

	if err := limiter.Wait(ctx); err != nil {
		failGroup(err.Error())
		return
	}

	if len(group) == 1 {
		sub := group[0]
		res, err := poller.PollSubscription(ctx, conn, sub)
		if err != nil {
			advance(job, sub.ID, false, 0, err.Error(), now)
			return
		}
		advance(job, sub.ID, true, res.NewItems, "", now)
		return
	}

	res, err := poller.PollSubscriptions(ctx, conn, group)
	if err != nil {
		failGroup(err.Error())
		return
	}

	itemsEach, errByID := attributeBatch(res, len(group))
	for _, sub := range group {
		if msg, failed := errByID[sub.ID]; failed {
			advance(job, sub.ID, false, 0, msg, now)
			continue
		}
		advance(job, sub.ID, true, itemsEach, "", now)
	}
}

// attributeBatch spreads a batched poll's combined item count evenly across
// the successful subscriptions: round(newItems / max(successCount, 1)).
// Batched polling reports one combined count, so per-subscription
// attribution is approximate.
func attributeBatch(res *services.BatchPollResult, groupSize int) (int, map[string]string) {
	errByID := make(map[string]string, len(res.Errors))
	for _, e := range res.Errors {
		errByID[e.SubscriptionID] = e.Error
	}

	successCount := groupSize - len(errByID)
	itemsPer := float64(res.NewItems) / math.Max(float64(successCount), 1)
	return int(math.Round(itemsPer)), errByID
}

// missingProviderErrors synthesizes one "<PROVIDER> not connected" error per
// provider that has active subscriptions but no active connection.
func missingProviderErrors(subs []*models.Subscription, connected map[models.Provider]bool) []models.SyncError {
	seen := make(map[models.Provider]bool)
	for _, sub := range subs {
		if !connected[sub.Provider] {
			seen[sub.Provider] = true
		}
	}

	var errs []models.SyncError
	for _, provider := range models.Providers() {
		if seen[provider] {
			errs = append(errs, models.SyncError{Error: provider.String() + " not connected"})
		}
	}
	return errs
}
