package playout

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/alertstation/internal/logging"
)

// completedRecord is one bounded-history completion entry.
type completedRecord struct {
	Item        Item
	CompletedAt time.Time
	Success     bool
	Error       string
}

// itemHeap implements heap.Interface over the priority tuple.
type itemHeap []*Item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)         { *h = append(*h, x.(*Item)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// completedHistoryLimit bounds the completed-item history.
const completedHistoryLimit = 100

// Queue is the thread-safe priority queue for alert playout with
// regulation-compliant precedence enforcement and preemption decisions.
type Queue struct {
	mu          sync.Mutex
	heap        itemHeap
	currentItem *Item
	completed   []completedRecord
	nextQueueID uint64

	logger *slog.Logger
}

// QueueStatus is a monitoring snapshot of the queue.
type QueueStatus struct {
	Size            int
	CurrentItem     *Item
	NextItem        *Item
	CompletedCount  int
	RecentCompleted []Item
}

// NewQueue creates an empty playout queue.
func NewQueue() *Queue {
	logger := logging.ForService("playout")
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		nextQueueID: 1,
		logger:      logger.With("component", "playout_queue"),
	}
}

// NextQueueID returns the next sequential queue id for item creation.
func (q *Queue) NextQueueID() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextQueueIDLocked()
}

func (q *Queue) nextQueueIDLocked() uint64 {
	id := q.nextQueueID
	q.nextQueueID++
	return id
}

// Enqueue inserts an item. When checkPreempt is set and an item is
// currently playing, it reports whether the new item should interrupt it.
func (q *Queue) Enqueue(item Item, checkPreempt bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item.QueueID == 0 {
		item.QueueID = q.nextQueueIDLocked()
	}

	entry := item
	heap.Push(&q.heap, &entry)

	q.logger.Info("enqueued alert",
		"event_code", item.EventCode,
		"precedence", item.Precedence.String(),
		"queue_id", entry.QueueID)

	if checkPreempt && q.currentItem != nil {
		return ShouldPreempt(&entry, q.currentItem)
	}
	return false
}

// Dequeue removes and returns the highest-priority item, setting it as the
// current item.
func (q *Queue) Dequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return Item{}, false
	}

	item := heap.Pop(&q.heap).(*Item)
	q.currentItem = item

	q.logger.Info("dequeued alert for playback",
		"event_code", item.EventCode,
		"precedence", item.Precedence.String(),
		"queue_id", item.QueueID)

	return *item, true
}

// Peek returns the highest-priority item without removing it.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return Item{}, false
	}
	return *q.heap[0], true
}

// CurrentItem returns the item currently marked as playing.
func (q *Queue) CurrentItem() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.currentItem == nil {
		return Item{}, false
	}
	return *q.currentItem, true
}

// ClearCurrent clears the current item when its id matches. Used for
// interrupted items, which are never marked completed.
func (q *Queue) ClearCurrent(queueID uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.currentItem != nil && q.currentItem.QueueID == queueID {
		q.currentItem = nil
	}
}

// MarkCompleted records an item's outcome, clears the current item when
// ids match, and appends to the bounded completion history.
func (q *Queue) MarkCompleted(item Item, success bool, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.currentItem != nil && q.currentItem.QueueID == item.QueueID {
		q.currentItem = nil
	}

	q.completed = append(q.completed, completedRecord{
		Item:        item,
		CompletedAt: time.Now(),
		Success:     success,
		Error:       errMsg,
	})
	if len(q.completed) > completedHistoryLimit {
		q.completed = q.completed[len(q.completed)-completedHistoryLimit:]
	}

	outcome := "successfully"
	if !success {
		outcome = "with error"
	}
	q.logger.Info("marked alert completed",
		"event_code", item.EventCode,
		"queue_id", item.QueueID,
		"outcome", outcome)
}

// RequeueInterrupted re-inserts an interrupted item with the same priority
// and payload under a fresh queue id, annotated with the interruption
// metadata. The origin timestamp is preserved so ordering against future
// arrivals still reflects the original event time.
func (q *Queue) RequeueInterrupted(item Item) Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	newItem := item
	newItem.QueueID = q.nextQueueIDLocked()
	newItem.Metadata = item.CloneMetadata()
	newItem.Metadata["requeued"] = true
	newItem.Metadata["original_queue_id"] = item.QueueID
	newItem.Metadata["requeue_reason"] = "Interrupted by higher-priority alert"
	newItem.Metadata["requeued_at"] = time.Now().UTC().Format(time.RFC3339)

	entry := newItem
	heap.Push(&q.heap, &entry)

	q.logger.Info("re-queued interrupted alert",
		"event_code", newItem.EventCode,
		"original_queue_id", item.QueueID,
		"queue_id", newItem.QueueID)

	return newItem
}

// ShouldPreempt decides whether a new item interrupts the current one.
// Presidential alerts always preempt; otherwise the priority tuples are
// compared ignoring queue ids.
func ShouldPreempt(newItem, current *Item) bool {
	if newItem.Precedence == PrecedencePresidential {
		return true
	}

	if newItem.Precedence != current.Precedence {
		return newItem.Precedence < current.Precedence
	}
	if newItem.Severity != current.Severity {
		return newItem.Severity < current.Severity
	}
	if newItem.Urgency != current.Urgency {
		return newItem.Urgency < current.Urgency
	}
	if !newItem.OriginTimestamp.Equal(current.OriginTimestamp) {
		return newItem.OriginTimestamp.Before(current.OriginTimestamp)
	}
	return false
}

// Clear removes all pending items and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := q.heap.Len()
	q.heap = nil
	if count > 0 {
		q.logger.Warn("cleared playout queue", "items", count)
	}
	return count
}

// Size returns the number of pending items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Snapshot returns all pending items in priority order.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	clone := make(itemHeap, len(q.heap))
	copy(clone, q.heap)
	heap.Init(&clone)

	out := make([]Item, 0, len(clone))
	for clone.Len() > 0 {
		out = append(out, *heap.Pop(&clone).(*Item))
	}
	return out
}

// Status returns a monitoring snapshot.
func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := QueueStatus{
		Size:           q.heap.Len(),
		CompletedCount: len(q.completed),
	}
	if q.currentItem != nil {
		current := *q.currentItem
		status.CurrentItem = &current
	}
	if q.heap.Len() > 0 {
		next := *q.heap[0]
		status.NextItem = &next
	}

	recent := q.completed
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	for _, record := range recent {
		status.RecentCompleted = append(status.RecentCompleted, record.Item)
	}

	return status
}
