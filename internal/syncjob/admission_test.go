package syncjob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/queue"
	"github.com/desertthunder/subsync/internal/services"
	"github.com/desertthunder/subsync/internal/shared"
	"github.com/desertthunder/subsync/internal/statestore"
)

type admissionFixture struct {
	store   *statestore.MemoryStore
	tracker *Tracker
	queue   *stubQueue
	subs    *stubSubs
	conns   *stubConns
	svc     *Service
}

func newAdmissionFixture(subs []*models.Subscription, conns map[models.Provider]*models.ProviderConnection, q queue.Queue) *admissionFixture {
	f := &admissionFixture{
		store: statestore.NewMemoryStore(),
		subs:  &stubSubs{subs: subs},
		conns: &stubConns{conns: conns},
	}
	f.tracker = NewTracker(f.store, nil, 0)

	if q == nil {
		f.queue = &stubQueue{}
		q = f.queue
	}

	pollers := stubPollers{
		models.ProviderYouTube: &stubPoller{provider: models.ProviderYouTube},
		models.ProviderSpotify: &stubPoller{provider: models.ProviderSpotify},
	}
	f.svc = NewService(f.tracker, f.store, q, f.subs, f.conns, pollers, Options{}, nil)
	return f
}

func TestInitiateSyncRequiresUser(t *testing.T) {
	f := newAdmissionFixture(nil, nil, nil)

	_, err := f.svc.InitiateSync(context.Background(), "")
	if !errors.Is(err, shared.ErrUserRequired) {
		t.Errorf("InitiateSync(\"\") error = %v, want ErrUserRequired", err)
	}
}

func TestInitiateSyncFansOut(t *testing.T) {
	ctx := context.Background()
	subs := []*models.Subscription{
		sub("s1", "u1", models.ProviderYouTube, "UC1"),
		sub("s2", "u1", models.ProviderSpotify, "show1"),
	}
	conns := map[models.Provider]*models.ProviderConnection{
		models.ProviderYouTube: conn("u1", models.ProviderYouTube),
		models.ProviderSpotify: conn("u1", models.ProviderSpotify),
	}
	f := newAdmissionFixture(subs, conns, nil)

	result, err := f.svc.InitiateSync(ctx, "u1")
	if err != nil {
		t.Fatalf("InitiateSync() error = %v", err)
	}
	if result.Existing {
		t.Error("fresh admission reported Existing")
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}

	job, ok, _ := f.tracker.LoadJob(ctx, result.JobID)
	if !ok {
		t.Fatal("job record not persisted")
	}
	if job.Status != models.JobPending || job.Total != 2 {
		t.Errorf("job = %s total %d, want pending total 2", job.Status, job.Total)
	}

	if marker, ok, _ := f.store.Get(ctx, statestore.ActiveJobKey("u1")); !ok || marker != result.JobID {
		t.Errorf("active marker = %q, %v, want job id", marker, ok)
	}
	if _, ok, _ := f.store.Get(ctx, statestore.RateLimitKey("u1")); !ok {
		t.Error("rate limit marker not set")
	}

	if len(f.queue.sent) != 2 {
		t.Fatalf("enqueued %d messages, want 2", len(f.queue.sent))
	}
	for _, body := range f.queue.sent {
		msg, err := queue.ParseMessage(body)
		if err != nil {
			t.Fatalf("enqueued message failed validation: %v", err)
		}
		if msg.JobID != result.JobID || msg.UserID != "u1" {
			t.Errorf("message = %+v", msg)
		}
	}
}

func TestInitiateSyncRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newAdmissionFixture(nil, nil, nil)

	base := time.Now()
	f.svc.now = func() time.Time { return base }

	if _, err := f.svc.InitiateSync(ctx, "u1"); err != nil {
		t.Fatalf("first InitiateSync() error = %v", err)
	}

	// 30s into the 120s window: 90s remain
	f.svc.now = func() time.Time { return base.Add(30 * time.Second) }
	_, err := f.svc.InitiateSync(ctx, "u1")

	var rateLimited *shared.RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("second InitiateSync() error = %v, want RateLimitedError", err)
	}
	if rateLimited.RetryAfterSeconds != 90 {
		t.Errorf("RetryAfterSeconds = %d, want 90", rateLimited.RetryAfterSeconds)
	}
	if !errors.Is(err, shared.ErrRateLimited) {
		t.Error("RateLimitedError does not unwrap to ErrRateLimited")
	}
}

func TestInitiateSyncRetryAfterRoundsUp(t *testing.T) {
	ctx := context.Background()
	f := newAdmissionFixture(nil, nil, nil)

	base := time.Now()
	f.svc.now = func() time.Time { return base }
	if _, err := f.svc.InitiateSync(ctx, "u1"); err != nil {
		t.Fatalf("first InitiateSync() error = %v", err)
	}

	// 100ms remaining still means "wait 1 second", never zero
	f.svc.now = func() time.Time { return base.Add(120*time.Second - 100*time.Millisecond) }
	_, err := f.svc.InitiateSync(ctx, "u1")

	var rateLimited *shared.RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("error = %v, want RateLimitedError", err)
	}
	if rateLimited.RetryAfterSeconds != 1 {
		t.Errorf("RetryAfterSeconds = %d, want 1", rateLimited.RetryAfterSeconds)
	}
}

func TestInitiateSyncDeduplicates(t *testing.T) {
	ctx := context.Background()
	subs := []*models.Subscription{sub("s1", "u1", models.ProviderYouTube, "UC1")}
	conns := map[models.Provider]*models.ProviderConnection{
		models.ProviderYouTube: conn("u1", models.ProviderYouTube),
	}
	f := newAdmissionFixture(subs, conns, nil)

	base := time.Now()
	f.svc.now = func() time.Time { return base }

	first, err := f.svc.InitiateSync(ctx, "u1")
	if err != nil {
		t.Fatalf("first InitiateSync() error = %v", err)
	}

	// past the cooldown but the job is still in flight
	f.svc.now = func() time.Time { return base.Add(3 * time.Minute) }
	second, err := f.svc.InitiateSync(ctx, "u1")
	if err != nil {
		t.Fatalf("second InitiateSync() error = %v", err)
	}
	if !second.Existing {
		t.Error("in-flight job not deduplicated")
	}
	if second.JobID != first.JobID {
		t.Errorf("JobID = %s, want %s", second.JobID, first.JobID)
	}
	if len(f.queue.sent) != 1 {
		t.Errorf("enqueued %d messages across both calls, want 1", len(f.queue.sent))
	}
}

func TestInitiateSyncStaleMarker(t *testing.T) {
	ctx := context.Background()
	f := newAdmissionFixture(nil, nil, nil)

	// marker points at a job record that already expired
	f.store.Put(ctx, statestore.ActiveJobKey("u1"), "gone", 0)

	result, err := f.svc.InitiateSync(ctx, "u1")
	if err != nil {
		t.Fatalf("InitiateSync() error = %v", err)
	}
	if result.Existing {
		t.Error("stale marker treated as an in-flight job")
	}
}

func TestInitiateSyncNoSubscriptions(t *testing.T) {
	ctx := context.Background()
	f := newAdmissionFixture(nil, nil, nil)

	result, err := f.svc.InitiateSync(ctx, "u1")
	if err != nil {
		t.Fatalf("InitiateSync() error = %v", err)
	}
	if result.Total != 0 {
		t.Errorf("Total = %d, want 0", result.Total)
	}

	job, ok, _ := f.tracker.LoadJob(ctx, result.JobID)
	if !ok {
		t.Fatal("empty job record not persisted")
	}
	if job.Status != models.JobCompleted {
		t.Errorf("Status = %s, want completed", job.Status)
	}
	if len(job.Errors) != 0 {
		t.Errorf("Errors = %+v, want none", job.Errors)
	}
	if job.Progress() != 100 {
		t.Errorf("Progress() = %d, want 100", job.Progress())
	}

	// nothing in flight, so no dedup marker
	if _, ok, _ := f.store.Get(ctx, statestore.ActiveJobKey("u1")); ok {
		t.Error("active marker set for an empty job")
	}
}

func TestInitiateSyncNoConnections(t *testing.T) {
	ctx := context.Background()
	subs := []*models.Subscription{
		sub("s1", "u1", models.ProviderYouTube, "UC1"),
		sub("s2", "u1", models.ProviderYouTube, "UC2"),
		sub("s3", "u1", models.ProviderSpotify, "show1"),
	}
	f := newAdmissionFixture(subs, nil, nil)

	result, err := f.svc.InitiateSync(ctx, "u1")
	if err != nil {
		t.Fatalf("InitiateSync() error = %v", err)
	}
	if result.Total != 0 {
		t.Errorf("Total = %d, want 0", result.Total)
	}

	job, _, _ := f.tracker.LoadJob(ctx, result.JobID)
	if job.Status != models.JobCompleted {
		t.Errorf("Status = %s, want completed", job.Status)
	}
	// one synthesized error per disconnected provider, not per subscription
	if len(job.Errors) != 2 {
		t.Fatalf("Errors = %+v, want 2 entries", job.Errors)
	}
	if job.Errors[0].Error != "YOUTUBE not connected" || job.Errors[1].Error != "SPOTIFY not connected" {
		t.Errorf("Errors = %+v", job.Errors)
	}
}

func TestInitiateSyncSynchronousFallback(t *testing.T) {
	ctx := context.Background()
	subs := []*models.Subscription{
		sub("s1", "u1", models.ProviderYouTube, "UC1"),
		sub("s2", "u1", models.ProviderSpotify, "show1"),
	}
	conns := map[models.Provider]*models.ProviderConnection{
		models.ProviderYouTube: conn("u1", models.ProviderYouTube),
		models.ProviderSpotify: conn("u1", models.ProviderSpotify),
	}
	f := newAdmissionFixture(subs, conns, queue.Disabled{})

	pollers := stubPollers{
		models.ProviderYouTube: &stubPoller{
			provider: models.ProviderYouTube,
			single: func(*models.Subscription) (*services.PollResult, error) {
				return &services.PollResult{NewItems: 3}, nil
			},
		},
		models.ProviderSpotify: &stubPoller{
			provider: models.ProviderSpotify,
			single: func(*models.Subscription) (*services.PollResult, error) {
				return nil, errors.New("spotify down")
			},
		},
	}
	f.svc = NewService(f.tracker, f.store, queue.Disabled{}, f.subs, f.conns, pollers, Options{PollRate: 1000}, nil)

	result, err := f.svc.InitiateSync(ctx, "u1")
	if err != nil {
		t.Fatalf("InitiateSync() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}

	job, ok, _ := f.tracker.LoadJob(ctx, result.JobID)
	if !ok {
		t.Fatal("job record missing")
	}
	if job.Status != models.JobCompleted {
		t.Errorf("Status = %s, want completed", job.Status)
	}
	if job.Succeeded != 1 || job.Failed != 1 || job.ItemsFound != 3 {
		t.Errorf("job = %+v", job)
	}
	if len(job.Errors) != 1 || job.Errors[0].SubscriptionID != "s2" {
		t.Errorf("Errors = %+v, want one entry for s2", job.Errors)
	}
	if _, ok, _ := f.store.Get(ctx, statestore.ActiveJobKey("u1")); ok {
		t.Error("active marker not cleared after synchronous run")
	}
}

func TestAttributeBatch(t *testing.T) {
	tc := []struct {
		name      string
		result    *services.BatchPollResult
		groupSize int
		wantEach  int
		wantErrs  int
	}{
		{
			name:      "even split",
			result:    &services.BatchPollResult{NewItems: 8},
			groupSize: 2,
			wantEach:  4,
		},
		{
			name:      "rounds half away from zero",
			result:    &services.BatchPollResult{NewItems: 5},
			groupSize: 2,
			wantEach:  3,
		},
		{
			name: "failures excluded from the split",
			result: &services.BatchPollResult{
				NewItems: 9,
				Errors:   []services.SubscriptionError{{SubscriptionID: "s2", Error: "boom"}},
			},
			groupSize: 3,
			wantEach:  5,
			wantErrs:  1,
		},
		{
			name: "all failed divides by one",
			result: &services.BatchPollResult{
				NewItems: 0,
				Errors: []services.SubscriptionError{
					{SubscriptionID: "s1", Error: "a"},
					{SubscriptionID: "s2", Error: "b"},
				},
			},
			groupSize: 2,
			wantEach:  0,
			wantErrs:  2,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			each, errByID := attributeBatch(tt.result, tt.groupSize)
			if each != tt.wantEach {
				t.Errorf("itemsEach = %d, want %d", each, tt.wantEach)
			}
			if len(errByID) != tt.wantErrs {
				t.Errorf("errors = %d, want %d", len(errByID), tt.wantErrs)
			}
		})
	}
}
