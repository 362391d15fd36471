package audiocore

import (
	"log/slog"
	"sync"

	"github.com/tphakala/alertstation/internal/errors"
	"github.com/tphakala/alertstation/internal/logging"
)

// BroadcastBus fans captured audio out to many independent consumers.
// Publishers write once; each subscriber gets its own bounded queue with a
// copy of the chunk, so one slow consumer can never starve the others or
// block the publisher.
type BroadcastBus struct {
	name     string
	maxQueue int

	mu          sync.Mutex
	subscribers map[string]*subscriberQueue
	order       []string

	published uint64
	dropped   uint64

	logger *slog.Logger
}

// subscriberQueue is one subscriber's bounded FIFO of chunk copies.
type subscriberQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks []AudioChunk
	max    int
	closed bool
}

func newSubscriberQueue(maxLen int) *subscriberQueue {
	q := &subscriberQueue{max: maxLen}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push inserts a chunk, dropping the oldest entry first when full.
// It reports whether an entry was dropped.
func (q *subscriberQueue) push(chunk AudioChunk) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	dropped := false
	if len(q.chunks) >= q.max {
		q.chunks = q.chunks[1:]
		dropped = true
	}
	q.chunks = append(q.chunks, chunk)
	q.cond.Signal()
	return dropped
}

// pop removes and returns the oldest chunk without waiting.
func (q *subscriberQueue) pop() (AudioChunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.chunks) == 0 {
		return AudioChunk{}, false
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	return chunk, true
}

// len returns the number of queued chunks.
func (q *subscriberQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// flush discards all queued chunks and returns how many were removed.
func (q *subscriberQueue) flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.chunks)
	q.chunks = nil
	return n
}

// close wakes any waiting reader and marks the queue dead.
func (q *subscriberQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.chunks = nil
	q.cond.Broadcast()
}

// NewBroadcastBus creates a bus with the given per-subscriber queue depth.
func NewBroadcastBus(name string, maxQueuePerSubscriber int) *BroadcastBus {
	if maxQueuePerSubscriber <= 0 {
		maxQueuePerSubscriber = DefaultMaxQueuePerSubscriber
	}

	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "broadcast_bus", "bus", name)

	logger.Info("broadcast bus created", "max_queue_per_subscriber", maxQueuePerSubscriber)

	return &BroadcastBus{
		name:        name,
		maxQueue:    maxQueuePerSubscriber,
		subscribers: make(map[string]*subscriberQueue),
		logger:      logger,
	}
}

// Name returns the bus name.
func (b *BroadcastBus) Name() string {
	return b.name
}

// Subscribe registers a new subscriber and returns its queue handle.
// The id must be unique for the life of the subscription.
func (b *BroadcastBus) Subscribe(id string) (*subscriberQueue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; exists {
		return nil, errors.New(ErrDuplicateSubscriber).
			Component(ComponentAudioCore).
			Category(errors.CategorySubscribe).
			Context("bus", b.name).
			Context("subscriber_id", id).
			Build()
	}

	q := newSubscriberQueue(b.maxQueue)
	b.subscribers[id] = q
	b.order = append(b.order, id)

	b.logger.Info("subscriber added",
		"subscriber_id", id,
		"total_subscribers", len(b.subscribers))

	return q, nil
}

// Unsubscribe removes a subscriber. It is idempotent.
func (b *BroadcastBus) Unsubscribe(id string) {
	b.mu.Lock()
	q, exists := b.subscribers[id]
	if exists {
		delete(b.subscribers, id)
		for i, name := range b.order {
			if name == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	remaining := len(b.subscribers)
	b.mu.Unlock()

	if exists {
		q.close()
		b.logger.Info("subscriber removed",
			"subscriber_id", id,
			"remaining", remaining)
	}
}

// Publish copies the chunk into every subscriber's queue and returns the
// number of subscribers that received it. Full queues have their oldest
// chunk dropped before insertion; the drop is counted for diagnostics but
// the delivery still counts.
func (b *BroadcastBus) Publish(chunk AudioChunk) int {
	if chunk.Len() == 0 {
		return 0
	}

	b.mu.Lock()
	queues := make([]*subscriberQueue, 0, len(b.subscribers))
	for _, id := range b.order {
		queues = append(queues, b.subscribers[id])
	}
	b.published++
	b.mu.Unlock()

	delivered := 0
	for _, q := range queues {
		if q.push(chunk.Clone()) {
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
		}
		delivered++
	}

	return delivered
}

// FlushSubscriber discards all pending chunks for one subscriber and
// returns how many were removed.
func (b *BroadcastBus) FlushSubscriber(id string) int {
	b.mu.Lock()
	q, exists := b.subscribers[id]
	b.mu.Unlock()
	if !exists {
		return 0
	}
	cleared := q.flush()
	if cleared > 0 {
		b.logger.Info("flushed subscriber queue", "subscriber_id", id, "cleared", cleared)
	}
	return cleared
}

// Stats returns current bus counters.
func (b *BroadcastBus) Stats() BusStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BusStats{
		Name:        b.name,
		Subscribers: len(b.subscribers),
		Published:   b.published,
		Dropped:     b.dropped,
	}
}
