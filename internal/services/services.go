// package services defines interface Poller for fetching new content from
// provider APIs
//
// YouTube (channel uploads), Spotify (show episodes)
package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/shared"
)

// PollResult is the outcome of polling a single subscription.
type PollResult struct {
	NewItems int
}

// SubscriptionError is a per-subscription failure inside a batched poll.
type SubscriptionError struct {
	SubscriptionID string
	Error          string
}

// BatchPollResult is the outcome of a batched poll. NewItems is the combined
// count across successful subscriptions; per-subscription attribution is not
// part of the contract.
type BatchPollResult struct {
	Processed int
	NewItems  int
	Errors    []SubscriptionError
}

// Poller fetches new content counts for subscriptions from one provider.
type Poller interface {
	// Provider returns the provider this poller serves.
	Provider() models.Provider

	// PollSubscription checks a single subscription for new content.
	PollSubscription(ctx context.Context, conn *models.ProviderConnection, sub *models.Subscription) (*PollResult, error)

	// PollSubscriptions checks several subscriptions in fewer provider API
	// calls. Per-subscription failures surface in the result's Errors; an
	// error return means the whole batch failed.
	PollSubscriptions(ctx context.Context, conn *models.ProviderConnection, subs []*models.Subscription) (*BatchPollResult, error)
}

// PollerSet holds one poller per provider and dispatches exhaustively on the
// closed enum.
type PollerSet struct {
	youtube Poller
	spotify Poller
}

// NewPollerSet creates a PollerSet. Both pollers are required.
func NewPollerSet(youtube, spotify Poller) *PollerSet {
	return &PollerSet{youtube: youtube, spotify: spotify}
}

// For returns the poller for a provider.
func (s *PollerSet) For(p models.Provider) (Poller, error) {
	switch p {
	case models.ProviderYouTube:
		return s.youtube, nil
	case models.ProviderSpotify:
		return s.spotify, nil
	default:
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownProvider, p)
	}
}
