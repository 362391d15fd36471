package audiocore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/alertstation/internal/logging"
)

// popWait removes and returns the oldest chunk, blocking up to timeout for
// one to arrive. A timer wakes the condition variable so waiters never
// sleep past the deadline.
func (q *subscriberQueue) popWait(timeout time.Duration) (AudioChunk, bool) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.chunks) == 0 && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return AudioChunk{}, false
		}
		wake := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		q.cond.Wait()
		wake.Stop()
	}

	if len(q.chunks) == 0 {
		return AudioChunk{}, false
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	return chunk, true
}

// SubscriberAdapter presents a pull API over one bus subscription. Arriving
// chunks are buffered as a list and consolidated only when a read needs
// contiguous samples or the five-second buffer bound is exceeded, which
// amortises allocation cost.
type SubscriberAdapter struct {
	bus          *BroadcastBus
	subscriberID string
	sampleRate   int
	readTimeout  time.Duration

	queue *subscriberQueue

	mu           sync.Mutex
	chunks       [][]float32
	totalSamples int
	maxSamples   int

	totalReads      uint64
	underrunCount   uint64
	lastUnderrunLog time.Time
	lastAudioTime   time.Time

	logger *slog.Logger
}

// NewSubscriberAdapter subscribes to the bus under the given id. The read
// timeout is floored at MinReadTimeout.
func NewSubscriberAdapter(bus *BroadcastBus, subscriberID string, sampleRate int, readTimeout time.Duration) (*SubscriberAdapter, error) {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if readTimeout < MinReadTimeout {
		readTimeout = MinReadTimeout
	}

	queue, err := bus.Subscribe(subscriberID)
	if err != nil {
		return nil, err
	}

	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "subscriber_adapter", "subscriber_id", subscriberID)

	logger.Info("subscribed to broadcast bus",
		"bus", bus.Name(),
		"read_timeout", readTimeout)

	return &SubscriberAdapter{
		bus:          bus,
		subscriberID: subscriberID,
		sampleRate:   sampleRate,
		readTimeout:  readTimeout,
		queue:        queue,
		maxSamples:   sampleRate * SubscriberBufferSeconds,
		logger:       logger,
	}, nil
}

// SubscriberID returns the bus subscription id.
func (a *SubscriberAdapter) SubscriberID() string {
	return a.subscriberID
}

// SampleRate returns the expected source sample rate.
func (a *SubscriberAdapter) SampleRate() int {
	return a.sampleRate
}

// consolidate concatenates the chunk list into one contiguous slice.
// Caller must hold a.mu.
func (a *SubscriberAdapter) consolidate() []float32 {
	if len(a.chunks) == 0 {
		return nil
	}
	if len(a.chunks) == 1 {
		return a.chunks[0]
	}
	merged := make([]float32, 0, a.totalSamples)
	for _, c := range a.chunks {
		merged = append(merged, c...)
	}
	a.chunks = [][]float32{merged}
	a.totalSamples = len(merged)
	return merged
}

// trimIfNeeded keeps the buffer within the five-second bound, discarding
// the oldest samples. Caller must hold a.mu.
func (a *SubscriberAdapter) trimIfNeeded() {
	if a.totalSamples <= a.maxSamples {
		return
	}
	buffer := a.consolidate()
	trimmed := buffer[len(buffer)-a.maxSamples:]
	a.chunks = [][]float32{trimmed}
	a.totalSamples = len(trimmed)
}

// fill pulls chunks from the subscription until the buffer holds at least
// need samples or a pull times out. Caller must hold a.mu.
func (a *SubscriberAdapter) fill(need int, timeout time.Duration) bool {
	for a.totalSamples < need {
		chunk, ok := a.queue.popWait(timeout)
		if !ok {
			return false
		}
		a.chunks = append(a.chunks, chunk.Samples)
		a.totalSamples += len(chunk.Samples)
		a.lastAudioTime = time.Now()
		a.trimIfNeeded()
	}
	return true
}

// recordUnderrun counts an underrun and logs it. The first ten occurrences
// log unconditionally, after that logging is rate-limited.
func (a *SubscriberAdapter) recordUnderrun(need int) {
	a.underrunCount++
	now := time.Now()
	if a.underrunCount <= 10 ||
		a.underrunCount%50 == 0 ||
		now.Sub(a.lastUnderrunLog) >= 10*time.Second {
		a.logger.Warn("buffer underrun",
			"underrun_count", a.underrunCount,
			"read_timeout", a.readTimeout,
			"queue_len", a.queue.len(),
			"buffer_samples", a.totalSamples,
			"needed_samples", need)
		a.lastUnderrunLog = now
	}
}

// ReadSamples returns exactly n samples, blocking up to the configured read
// timeout while draining the subscription. It returns nil on underrun;
// silence is never fabricated at this layer.
func (a *SubscriberAdapter) ReadSamples(n int) []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalReads++

	if !a.fill(n, a.readTimeout) {
		a.recordUnderrun(n)
		return nil
	}

	buffer := a.consolidate()
	samples := make([]float32, n)
	copy(samples, buffer[:n])

	remaining := buffer[n:]
	if len(remaining) > 0 {
		a.chunks = [][]float32{remaining}
		a.totalSamples = len(remaining)
	} else {
		a.chunks = nil
		a.totalSamples = 0
	}

	return samples
}

// GetChunk returns one chunk of approximately 100 ms, blocking up to
// timeout. Returns nil when not enough audio arrived in time.
func (a *SubscriberAdapter) GetChunk(timeout time.Duration) []float32 {
	chunkSamples := a.sampleRate / 10

	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalReads++

	if !a.fill(chunkSamples, timeout) {
		a.recordUnderrun(chunkSamples)
		return nil
	}

	buffer := a.consolidate()
	samples := make([]float32, chunkSamples)
	copy(samples, buffer[:chunkSamples])

	remaining := buffer[chunkSamples:]
	if len(remaining) > 0 {
		a.chunks = [][]float32{remaining}
		a.totalSamples = len(remaining)
	} else {
		a.chunks = nil
		a.totalSamples = 0
	}

	return samples
}

// GetRecent returns up to n of the most recent buffered samples without
// consuming them, or nil when the buffer is empty. Less than n is returned
// when less is available.
func (a *SubscriberAdapter) GetRecent(n int) []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.totalSamples == 0 {
		a.logger.Warn("recent-audio request on empty buffer")
		return nil
	}

	buffer := a.consolidate()
	available := min(len(buffer), n)
	out := make([]float32, available)
	copy(out, buffer[len(buffer)-available:])
	return out
}

// Flush discards all buffered and queued chunks and returns how many
// samples were dropped from the local buffer.
func (a *SubscriberAdapter) Flush() int {
	a.mu.Lock()
	dropped := a.totalSamples
	a.chunks = nil
	a.totalSamples = 0
	a.mu.Unlock()

	a.bus.FlushSubscriber(a.subscriberID)
	return dropped
}

// Stats returns buffer and underrun counters. Health is classified by the
// underrun rate: under 1% good, under 5% degraded, otherwise poor.
func (a *SubscriberAdapter) Stats() SubscriberStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var rate float64
	if a.totalReads > 0 {
		rate = float64(a.underrunCount) / float64(a.totalReads) * 100
	}

	health := "good"
	switch {
	case rate >= 5.0:
		health = "poor"
	case rate >= 1.0:
		health = "degraded"
	}

	var bufferSeconds float64
	if a.sampleRate > 0 {
		bufferSeconds = float64(a.totalSamples) / float64(a.sampleRate)
	}

	return SubscriberStats{
		SubscriberID:    a.subscriberID,
		QueueLen:        a.queue.len(),
		BufferSamples:   a.totalSamples,
		BufferSeconds:   bufferSeconds,
		SampleRate:      a.sampleRate,
		TotalReads:      a.totalReads,
		UnderrunCount:   a.underrunCount,
		UnderrunRatePct: rate,
		LastAudioTime:   a.lastAudioTime,
		Health:          health,
	}
}

// Unsubscribe releases the bus subscription.
func (a *SubscriberAdapter) Unsubscribe() {
	stats := a.Stats()
	a.bus.Unsubscribe(a.subscriberID)
	a.logger.Info("unsubscribed",
		"total_reads", stats.TotalReads,
		"underrun_count", stats.UnderrunCount,
		"underrun_rate_pct", stats.UnderrunRatePct)
}
