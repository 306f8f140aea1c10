package syncjob

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/queue"
	"github.com/desertthunder/subsync/internal/services"
	"github.com/desertthunder/subsync/internal/shared"
)

// SubscriptionStore is the slice of the relational store the orchestrator
// reads.
type SubscriptionStore interface {
	ListActiveByUser(userID string) ([]*models.Subscription, error)
}

// ConnectionStore is the slice of the provider-connection store the
// orchestrator reads.
type ConnectionStore interface {
	GetActive(userID string, provider models.Provider) (*models.ProviderConnection, error)
	ListActiveByUser(userID string) ([]*models.ProviderConnection, error)
}

// PollerResolver resolves the poller for a provider.
type PollerResolver interface {
	For(p models.Provider) (services.Poller, error)
}

// Consumer processes batches of per-subscription sync messages. Outcomes are
// entirely side-effecting: progress updates through the tracker plus
// acknowledgment. Every message is acknowledged exactly once after its
// outcome is recorded, so queue-level redelivery never drives retries.
type Consumer struct {
	tracker *Tracker
	subs    SubscriptionStore
	conns   ConnectionStore
	pollers PollerResolver
	logger  *log.Logger
}

// NewConsumer creates a queue consumer.
func NewConsumer(tracker *Tracker, subs SubscriptionStore, conns ConnectionStore, pollers PollerResolver, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Consumer{
		tracker: tracker,
		subs:    subs,
		conns:   conns,
		pollers: pollers,
		logger:  shared.WithLogger(logger, "component", "consumer"),
	}
}

type consumerItem struct {
	delivery *queue.Delivery
	msg      *models.SyncQueueMessage
	sub      *models.Subscription
}

type jobKey struct {
	jobID  string
	userID string
}

// HandleBatch validates, groups and processes one delivered batch.
func (c *Consumer) HandleBatch(ctx context.Context, batch []*queue.Delivery) {
	groups := make(map[jobKey][]*consumerItem)

	for _, d := range batch {
		msg, err := queue.ParseMessage(d.Body)
		if err != nil {
			// ClassTerminal: malformed data cannot self-heal, never retried
			c.logger.Warn("dropping malformed sync message", "messageId", d.ID, "err", err)
			d.Ack()
			continue
		}
		key := jobKey{jobID: msg.JobID, userID: msg.UserID}
		groups[key] = append(groups[key], &consumerItem{delivery: d, msg: msg})
	}

	for key, items := range groups {
		c.processJobGroup(ctx, key, items)
	}
}

// processJobGroup handles all of one job's messages in the batch, provider
// group by provider group, strictly in sequence. Failures are isolated per
// group.
func (c *Consumer) processJobGroup(ctx context.Context, key jobKey, items []*consumerItem) {
	byProvider := make(map[models.Provider][]*consumerItem)
	for _, item := range items {
		byProvider[item.msg.Provider] = append(byProvider[item.msg.Provider], item)
	}

	// iterate the closed enum for a stable processing order
	for _, provider := range models.Providers() {
		group := byProvider[provider]
		if len(group) == 0 {
			continue
		}
		c.processProviderGroup(ctx, key, provider, group)
	}
}

func (c *Consumer) processProviderGroup(ctx context.Context, key jobKey, provider models.Provider, group []*consumerItem) {
	logger := shared.WithLogger(c.logger, "jobId", key.jobID, "userId", key.userID, "provider", provider.String())

	conn, err := c.conns.GetActive(key.userID, provider)
	if err != nil {
		logger.Error("connection lookup failed", "err", err)
		c.finishAll(ctx, group, false, 0, err.Error())
		return
	}
	if conn == nil {
		// ClassRecordedFailure: a missing connection will not resolve by retrying
		c.finishAll(ctx, group, false, 0, provider.String()+" not connected")
		return
	}

	active, err := c.activeSubscriptions(key.userID)
	if err != nil {
		logger.Error("subscription lookup failed", "err", err)
		c.finishAll(ctx, group, false, 0, err.Error())
		return
	}

	var syncable []*consumerItem
	for _, item := range group {
		sub, ok := active[item.msg.SubscriptionID]
		class := Classify(Outcome{ConnectionPresent: true, SubscriptionActive: ok})
		if class == ClassTrivialSuccess {
			// removed/paused after enqueue; the user's intent supersedes the sync
			c.finish(ctx, item, true, 0, "")
			continue
		}
		item.sub = sub
		syncable = append(syncable, item)
	}
	if len(syncable) == 0 {
		return
	}

	poller, err := c.pollers.For(provider)
	if err != nil {
		c.finishAll(ctx, syncable, false, 0, err.Error())
		return
	}

	if len(syncable) == 1 {
		c.pollSingle(ctx, poller, conn, syncable[0])
		return
	}
	c.pollBatched(ctx, poller, conn, syncable)
}

// pollSingle drives the single-subscription polling path. A thrown provider
// error becomes an application-level failed outcome, never a queue retry.
func (c *Consumer) pollSingle(ctx context.Context, poller services.Poller, conn *models.ProviderConnection, item *consumerItem) {
	res, err := poller.PollSubscription(ctx, conn, item.sub)
	if Classify(Outcome{ConnectionPresent: true, SubscriptionActive: true, PollErr: err}) == ClassRecordedFailure {
		c.finish(ctx, item, false, 0, err.Error())
		return
	}
	c.finish(ctx, item, true, res.NewItems, "")
}

// pollBatched drives the batched polling path. The batched result reports a
// combined item count, attributed evenly across successful subscriptions
// (round(newItems / max(successCount, 1))), an approximation rather than an
// exact per-subscription count.
func (c *Consumer) pollBatched(ctx context.Context, poller services.Poller, conn *models.ProviderConnection, group []*consumerItem) {
	subs := make([]*models.Subscription, len(group))
	for i, item := range group {
		subs[i] = item.sub
	}

	res, err := poller.PollSubscriptions(ctx, conn, subs)
	if err != nil {
		// group-level failure: every message in the group records the error
		c.finishAll(ctx, group, false, 0, err.Error())
		return
	}

	itemsEach, errByID := attributeBatch(res, len(group))

	for _, item := range group {
		if msg, failed := errByID[item.msg.SubscriptionID]; failed {
			c.finish(ctx, item, false, 0, msg)
			continue
		}
		c.finish(ctx, item, true, itemsEach, "")
	}
}

// finish records the outcome and then acknowledges, in that order, so an
// acknowledged message's effect is visible in the job record.
func (c *Consumer) finish(ctx context.Context, item *consumerItem, success bool, items int, errMsg string) {
	if err := c.tracker.RecordOutcome(ctx, item.msg.JobID, item.msg.SubscriptionID, success, items, errMsg); err != nil {
		c.logger.Error("failed to record outcome", "jobId", item.msg.JobID, "subscriptionId", item.msg.SubscriptionID, "err", err)
	}
	item.delivery.Ack()
}

func (c *Consumer) finishAll(ctx context.Context, items []*consumerItem, success bool, count int, errMsg string) {
	for _, item := range items {
		c.finish(ctx, item, success, count, errMsg)
	}
}

func (c *Consumer) activeSubscriptions(userID string) (map[string]*models.Subscription, error) {
	subs, err := c.subs.ListActiveByUser(userID)
	if err != nil {
		return nil, err
	}
	active := make(map[string]*models.Subscription, len(subs))
	for _, sub := range subs {
		active[sub.ID] = sub
	}
	return active, nil
}
