package syncjob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/queue"
	"github.com/desertthunder/subsync/internal/shared"
	"github.com/desertthunder/subsync/internal/statestore"
)

// DLQOptions configures dead-letter capture.
type DLQOptions struct {
	Environment string        // deployment tag stamped on every entry
	TTL         time.Duration // retention shared by entries and the index
	IndexCap    int           // max ids kept in the most-recent-first index
}

// DLQConsumer captures messages that exhausted the queue's retry budget.
// Its job is to capture, not to resolve: every delivery is acknowledged
// regardless of persistence outcome, and entries are only removed by
// explicit operator action or TTL expiry.
type DLQConsumer struct {
	store  statestore.StateStore
	logger *log.Logger
	opts   DLQOptions
	now    func() time.Time
}

// NewDLQConsumer creates a DLQ consumer.
func NewDLQConsumer(store statestore.StateStore, opts DLQOptions, logger *log.Logger) *DLQConsumer {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if opts.TTL <= 0 {
		opts.TTL = statestore.DefaultDLQTTL
	}
	if opts.IndexCap <= 0 {
		opts.IndexCap = 100
	}
	if opts.Environment == "" {
		opts.Environment = "development"
	}

	return &DLQConsumer{
		store:  store,
		logger: shared.WithLogger(logger, "component", "dlq"),
		opts:   opts,
		now:    time.Now,
	}
}

// HandleBatch captures one delivered dead-letter batch.
func (d *DLQConsumer) HandleBatch(ctx context.Context, batch []*queue.Delivery) {
	ids := make([]string, 0, len(batch))

	for _, delivery := range batch {
		entry := d.buildEntry(delivery)

		// primary out-of-band alert: operators page on this line
		d.logger.Error("sync message dead-lettered",
			"messageId", delivery.ID,
			"attempts", entry.Attempts,
			"jobId", entry.Message.JobID,
			"userId", entry.Message.UserID,
			"provider", entry.Message.Provider,
			"subscriptionId", entry.Message.SubscriptionID)

		data, err := json.Marshal(&entry)
		if err != nil {
			d.logger.Error("failed to marshal DLQ entry", "messageId", delivery.ID, "err", err)
			continue
		}
		if err := d.store.Put(ctx, statestore.DLQEntryKey(entry.ID), string(data), d.opts.TTL); err != nil {
			d.logger.Error("failed to persist DLQ entry", "messageId", delivery.ID, "err", err)
			continue
		}
		ids = append(ids, entry.ID)
	}

	if len(ids) > 0 {
		if err := d.prependIndex(ctx, ids); err != nil {
			d.logger.Error("failed to update DLQ index", "err", err)
		}
	}

	// capture is best-effort; acknowledgment is not
	for _, delivery := range batch {
		delivery.Ack()
	}
}

// buildEntry converts a dead-lettered delivery into a persistent entry. A
// message that fails schema validation still produces an entry, with
// "unknown" sentinels for whatever could not be recovered; evidence of a
// failure is never dropped.
func (d *DLQConsumer) buildEntry(delivery *queue.Delivery) models.DLQEntry {
	entry := models.DLQEntry{
		ID:             shared.GenerateID(),
		DeadLetteredAt: d.now().UnixMilli(),
		Attempts:       delivery.Attempts,
		Environment:    d.opts.Environment,
		Message: models.DLQMessage{
			JobID:             models.DLQUnknown,
			UserID:            models.DLQUnknown,
			SubscriptionID:    models.DLQUnknown,
			Provider:          models.DLQUnknown,
			ProviderChannelID: models.DLQUnknown,
		},
	}

	if msg, err := queue.ParseMessage(delivery.Body); err == nil {
		entry.Message = models.DLQMessage{
			JobID:             msg.JobID,
			UserID:            msg.UserID,
			SubscriptionID:    msg.SubscriptionID,
			Provider:          msg.Provider.String(),
			ProviderChannelID: msg.ProviderChannelID,
			EnqueuedAt:        msg.EnqueuedAt,
		}
		return entry
	}

	// best-effort partial reconstruction of a malformed body
	var partial map[string]any
	if err := json.Unmarshal(delivery.Body, &partial); err != nil {
		return entry
	}
	if v, ok := partial["jobId"].(string); ok && v != "" {
		entry.Message.JobID = v
	}
	if v, ok := partial["userId"].(string); ok && v != "" {
		entry.Message.UserID = v
	}
	if v, ok := partial["subscriptionId"].(string); ok && v != "" {
		entry.Message.SubscriptionID = v
	}
	if v, ok := partial["provider"].(string); ok && v != "" {
		entry.Message.Provider = v
	}
	if v, ok := partial["providerChannelId"].(string); ok && v != "" {
		entry.Message.ProviderChannelID = v
	}
	if v, ok := partial["enqueuedAt"].(float64); ok {
		entry.Message.EnqueuedAt = int64(v)
	}
	return entry
}

// prependIndex puts the new ids at the head of the most-recent-first index
// and truncates to the cap. Entries evicted from the index stay in storage
// until their own TTL expires; they are reachable by direct key only.
func (d *DLQConsumer) prependIndex(ctx context.Context, ids []string) error {
	existing, err := d.loadIndex(ctx)
	if err != nil {
		return err
	}

	index := append(ids, existing...)
	if len(index) > d.opts.IndexCap {
		index = index[:d.opts.IndexCap]
	}
	return d.saveIndex(ctx, index)
}

func (d *DLQConsumer) loadIndex(ctx context.Context) ([]string, error) {
	raw, ok, err := d.store.Get(ctx, statestore.DLQIndexKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var index []string
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		return nil, fmt.Errorf("failed to decode DLQ index: %w", err)
	}
	return index, nil
}

func (d *DLQConsumer) saveIndex(ctx context.Context, index []string) error {
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ index: %w", err)
	}
	return d.store.Put(ctx, statestore.DLQIndexKey, string(data), d.opts.TTL)
}

// ListEntries returns up to limit captured entries, most recent first.
// Ids whose entries are missing (expired) or unparseable are silently
// skipped; the list is an operational view, not a ledger.
func (d *DLQConsumer) ListEntries(ctx context.Context, limit int) ([]models.DLQEntry, error) {
	index, err := d.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(index) {
		limit = len(index)
	}

	entries := make([]models.DLQEntry, 0, limit)
	for _, id := range index {
		if len(entries) >= limit {
			break
		}
		raw, ok, err := d.store.Get(ctx, statestore.DLQEntryKey(id))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var entry models.DLQEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Summary returns the count, up to 10 most recent entries, and the
// oldest/newest timestamps of that recent set. With more than 10 indexed
// entries "oldest" is only accurate within the fetched window.
func (d *DLQConsumer) Summary(ctx context.Context) (*models.DLQSummary, error) {
	index, err := d.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := d.ListEntries(ctx, 10)
	if err != nil {
		return nil, err
	}

	summary := &models.DLQSummary{Count: len(index), Recent: recent}
	for _, entry := range recent {
		if summary.Oldest == 0 || entry.DeadLetteredAt < summary.Oldest {
			summary.Oldest = entry.DeadLetteredAt
		}
		if entry.DeadLetteredAt > summary.Newest {
			summary.Newest = entry.DeadLetteredAt
		}
	}
	return summary, nil
}

// DeleteEntry removes an entry and rewrites the index without it. Returns
// whether the entry existed.
func (d *DLQConsumer) DeleteEntry(ctx context.Context, id string) (bool, error) {
	_, existed, err := d.store.Get(ctx, statestore.DLQEntryKey(id))
	if err != nil {
		return false, err
	}

	if err := d.store.Delete(ctx, statestore.DLQEntryKey(id)); err != nil {
		return false, err
	}

	index, err := d.loadIndex(ctx)
	if err != nil {
		return existed, err
	}
	filtered := index[:0]
	for _, indexed := range index {
		if indexed != id {
			filtered = append(filtered, indexed)
		}
	}
	if len(filtered) != len(index) {
		if err := d.saveIndex(ctx, filtered); err != nil {
			return existed, err
		}
	}
	return existed, nil
}
