package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subsync/internal/shared"
)

const queueDepth = 4096

// Options configures the embedded queue.
type Options struct {
	BatchSize   int           // max messages per handler invocation
	Linger      time.Duration // how long to wait filling a batch after the first message
	MaxReceives int           // receives before a message is dead-lettered
}

type message struct {
	id       string
	body     []byte
	receives int
}

// MemoryQueue is the embedded in-process [Queue]. Unacked messages are
// redelivered until MaxReceives, then moved to the dead-letter topic.
type MemoryQueue struct {
	opts   Options
	logger *log.Logger

	primary chan *message
	dead    chan *message

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryQueue creates an embedded queue with the given options. Zero
// option values fall back to batch size 10, 250ms linger, 3 receives.
func NewMemoryQueue(opts Options, logger *log.Logger) *MemoryQueue {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Linger <= 0 {
		opts.Linger = 250 * time.Millisecond
	}
	if opts.MaxReceives <= 0 {
		opts.MaxReceives = 3
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &MemoryQueue{
		opts:    opts,
		logger:  shared.WithLogger(logger, "component", "queue"),
		primary: make(chan *message, queueDepth),
		dead:    make(chan *message, queueDepth),
		stop:    make(chan struct{}),
	}
}

// SendBatch enqueues all bodies. A full queue is reported as unavailability
// so the caller can fall back to synchronous processing.
func (q *MemoryQueue) SendBatch(ctx context.Context, bodies [][]byte) error {
	select {
	case <-q.stop:
		return fmt.Errorf("%w: queue stopped", shared.ErrQueueUnavailable)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for _, body := range bodies {
		msg := &message{id: shared.GenerateID(), body: body}
		select {
		case q.primary <- msg:
		default:
			return fmt.Errorf("%w: queue full", shared.ErrQueueUnavailable)
		}
	}
	return nil
}

// Subscribe starts batch delivery from the primary topic.
func (q *MemoryQueue) Subscribe(h BatchHandler) {
	q.wg.Add(1)
	go q.deliverLoop(q.primary, h, true)
}

// SubscribeDLQ starts batch delivery from the dead-letter topic. Unacked
// dead-letter messages are redelivered to the same topic; they never move
// further.
func (q *MemoryQueue) SubscribeDLQ(h BatchHandler) {
	q.wg.Add(1)
	go q.deliverLoop(q.dead, h, false)
}

// Close stops delivery loops and waits for in-flight handlers.
func (q *MemoryQueue) Close() error {
	q.stopOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
	return nil
}

func (q *MemoryQueue) deliverLoop(topic chan *message, h BatchHandler, primary bool) {
	defer q.wg.Done()

	for {
		batch := q.collect(topic)
		if batch == nil {
			return
		}

		deliveries := make([]*Delivery, len(batch))
		for i, msg := range batch {
			if primary {
				msg.receives++
			}
			// dead-letter deliveries keep the receive count frozen at the
			// value it had when the message exhausted its budget
			deliveries[i] = &Delivery{ID: msg.id, Body: msg.body, Attempts: msg.receives}
		}

		h(context.Background(), deliveries)

		for i, d := range deliveries {
			if d.Acked() {
				continue
			}
			msg := batch[i]
			if primary && msg.receives >= q.opts.MaxReceives {
				q.logger.Warn("message exhausted retries, dead-lettering", "messageId", msg.id, "receives", msg.receives)
				q.requeue(q.dead, msg)
				continue
			}
			q.requeue(topic, msg)
		}
	}
}

// collect blocks for the first message, then fills the batch until the
// linger window closes or the batch is full. Returns nil on shutdown.
func (q *MemoryQueue) collect(topic chan *message) []*message {
	var first *message
	select {
	case first = <-topic:
	case <-q.stop:
		return nil
	}

	batch := []*message{first}
	timer := time.NewTimer(q.opts.Linger)
	defer timer.Stop()

	for len(batch) < q.opts.BatchSize {
		select {
		case msg := <-topic:
			batch = append(batch, msg)
		case <-timer.C:
			return batch
		case <-q.stop:
			return batch
		}
	}
	return batch
}

func (q *MemoryQueue) requeue(topic chan *message, msg *message) {
	select {
	case topic <- msg:
	default:
		// topic full; the job record's TTL self-healing covers the loss
		q.logger.Error("dropping message, topic full", "messageId", msg.id)
	}
}

// Disabled is the [Queue] used in local/dev mode: every send reports
// unavailability so admission processes subscriptions synchronously.
type Disabled struct{}

func (Disabled) SendBatch(context.Context, [][]byte) error {
	return fmt.Errorf("%w: disabled by config", shared.ErrQueueUnavailable)
}

func (Disabled) Subscribe(BatchHandler)    {}
func (Disabled) SubscribeDLQ(BatchHandler) {}
func (Disabled) Close() error              { return nil }
