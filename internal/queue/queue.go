// Package queue provides the sync message queue consumed by the orchestrator.
//
// The contract mirrors a managed broker: at-least-once delivery, batched
// handoff to a handler, manual per-message acknowledgment, a native receive
// count per message, and a dead-letter topic that messages enter after
// exhausting the retry budget. The embedded implementation in this package
// exists so the binary runs self-contained; nothing in the consumers depends
// on it beyond this interface.
package queue

import (
	"context"
	"sync/atomic"
)

// Delivery is one received message. Attempts is the receive count including
// this delivery. Ack is idempotent; a message left unacked when the handler
// returns is redelivered (or dead-lettered once its budget is spent).
type Delivery struct {
	ID       string
	Body     []byte
	Attempts int

	acked atomic.Bool
}

// Ack marks the delivery as consumed.
func (d *Delivery) Ack() {
	d.acked.Store(true)
}

// Acked reports whether Ack has been called.
func (d *Delivery) Acked() bool {
	return d.acked.Load()
}

// BatchHandler processes one delivered batch. It must ack every message it
// has finished with before returning.
type BatchHandler func(ctx context.Context, batch []*Delivery)

// Queue is the message queue consumed by admission (producer side) and the
// sync/DLQ consumers.
type Queue interface {
	// SendBatch enqueues the message bodies as one batch. Returns
	// [shared.ErrQueueUnavailable] (wrapped) when the queue cannot accept
	// work, which callers treat as "process synchronously instead".
	SendBatch(ctx context.Context, bodies [][]byte) error

	// Subscribe registers the handler for primary-topic batches and starts
	// delivery.
	Subscribe(h BatchHandler)

	// SubscribeDLQ registers the handler for dead-letter batches and starts
	// delivery.
	SubscribeDLQ(h BatchHandler)

	// Close stops delivery. In-flight handler invocations finish first.
	Close() error
}
