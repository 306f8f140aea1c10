package syncjob

import (
	"context"
	"fmt"

	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/queue"
	"github.com/desertthunder/subsync/internal/services"
	"github.com/desertthunder/subsync/internal/shared"
)

// stubSubs is a canned SubscriptionStore.
type stubSubs struct {
	subs []*models.Subscription
	err  error
}

func (s *stubSubs) ListActiveByUser(userID string) ([]*models.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Active {
			out = append(out, sub)
		}
	}
	return out, nil
}

// stubConns is a canned ConnectionStore keyed by provider.
type stubConns struct {
	conns map[models.Provider]*models.ProviderConnection
	err   error
}

func (s *stubConns) GetActive(userID string, provider models.Provider) (*models.ProviderConnection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.conns[provider], nil
}

func (s *stubConns) ListActiveByUser(userID string) ([]*models.ProviderConnection, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.ProviderConnection
	for _, conn := range s.conns {
		out = append(out, conn)
	}
	return out, nil
}

// stubPoller is a scriptable services.Poller.
type stubPoller struct {
	provider models.Provider
	single   func(sub *models.Subscription) (*services.PollResult, error)
	batch    func(subs []*models.Subscription) (*services.BatchPollResult, error)
}

func (p *stubPoller) Provider() models.Provider {
	return p.provider
}

func (p *stubPoller) PollSubscription(_ context.Context, _ *models.ProviderConnection, sub *models.Subscription) (*services.PollResult, error) {
	if p.single == nil {
		return &services.PollResult{}, nil
	}
	return p.single(sub)
}

func (p *stubPoller) PollSubscriptions(_ context.Context, _ *models.ProviderConnection, subs []*models.Subscription) (*services.BatchPollResult, error) {
	if p.batch == nil {
		return &services.BatchPollResult{Processed: len(subs)}, nil
	}
	return p.batch(subs)
}

// stubPollers resolves pollers from a map.
type stubPollers map[models.Provider]services.Poller

func (s stubPollers) For(p models.Provider) (services.Poller, error) {
	poller, ok := s[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownProvider, p)
	}
	return poller, nil
}

// stubQueue records sent bodies and optionally refuses them.
type stubQueue struct {
	sent    [][]byte
	sendErr error
}

func (q *stubQueue) SendBatch(_ context.Context, bodies [][]byte) error {
	if q.sendErr != nil {
		return q.sendErr
	}
	q.sent = append(q.sent, bodies...)
	return nil
}

func (q *stubQueue) Subscribe(queue.BatchHandler)    {}
func (q *stubQueue) SubscribeDLQ(queue.BatchHandler) {}
func (q *stubQueue) Close() error                    { return nil }

func sub(id, userID string, provider models.Provider, channelID string) *models.Subscription {
	return &models.Subscription{
		ID:                id,
		UserID:            userID,
		Provider:          provider,
		ProviderChannelID: channelID,
		Active:            true,
	}
}

func conn(userID string, provider models.Provider) *models.ProviderConnection {
	return &models.ProviderConnection{
		ID:          "conn-" + string(provider),
		UserID:      userID,
		Provider:    provider,
		AccessToken: "tok",
		Active:      true,
	}
}
