package audiocore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishSamples(bus *BroadcastBus, n int, value float32) {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	bus.Publish(AudioChunk{
		Samples:    samples,
		SampleRate: 16000,
		Channels:   1,
		Source:     "test",
		Timestamp:  time.Now(),
	})
}

func TestReadSamplesExactCount(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	sub, err := NewSubscriberAdapter(bus, "reader", 16000, 200*time.Millisecond)
	require.NoError(t, err)

	publishSamples(bus, 100, 0.25)
	publishSamples(bus, 100, 0.5)

	samples := sub.ReadSamples(150)
	require.NotNil(t, samples)
	require.Len(t, samples, 150)
	assert.InDelta(t, 0.25, samples[0], 1e-6)
	assert.InDelta(t, 0.5, samples[149], 1e-6)

	// The remaining 50 samples stay buffered for the next read.
	rest := sub.ReadSamples(50)
	require.NotNil(t, rest)
	assert.InDelta(t, 0.5, rest[0], 1e-6)
}

func TestReadSamplesUnderrun(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	sub, err := NewSubscriberAdapter(bus, "reader", 16000, 0)
	require.NoError(t, err)

	publishSamples(bus, 10, 0.1)

	started := time.Now()
	samples := sub.ReadSamples(100)
	elapsed := time.Since(started)

	assert.Nil(t, samples, "underrun returns nil, silence is not fabricated")
	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond, "read blocks for the configured timeout")

	stats := sub.Stats()
	assert.Equal(t, uint64(1), stats.TotalReads)
	assert.Equal(t, uint64(1), stats.UnderrunCount)
}

func TestReadTimeoutFloor(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	sub, err := NewSubscriberAdapter(bus, "reader", 16000, time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, MinReadTimeout, sub.readTimeout)
}

func TestGetChunkReturnsHundredMilliseconds(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	sub, err := NewSubscriberAdapter(bus, "reader", 16000, 200*time.Millisecond)
	require.NoError(t, err)

	publishSamples(bus, 2000, 0.3)

	chunk := sub.GetChunk(200 * time.Millisecond)
	require.NotNil(t, chunk)
	assert.Len(t, chunk, 1600, "100 ms at 16 kHz")
}

func TestGetRecentDoesNotConsume(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	sub, err := NewSubscriberAdapter(bus, "reader", 16000, 200*time.Millisecond)
	require.NoError(t, err)

	publishSamples(bus, 200, 0.4)

	// Prime the internal buffer.
	primed := sub.ReadSamples(50)
	require.NotNil(t, primed)

	recent := sub.GetRecent(100)
	require.NotNil(t, recent)
	assert.Len(t, recent, 100)

	again := sub.GetRecent(100)
	assert.Len(t, again, 100, "recent reads are non-consuming")

	// Asking for more than buffered returns what is available.
	large := sub.GetRecent(100000)
	assert.Len(t, large, 150)
}

func TestGetRecentEmptyBuffer(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	sub, err := NewSubscriberAdapter(bus, "reader", 16000, 200*time.Millisecond)
	require.NoError(t, err)

	assert.Nil(t, sub.GetRecent(100))
}

func TestBufferTrimsToFiveSeconds(t *testing.T) {
	t.Parallel()

	sampleRate := 1000 // small rate keeps the test fast
	bus := NewBroadcastBus("test-bus", 1000)
	sub, err := NewSubscriberAdapter(bus, "reader", sampleRate, 200*time.Millisecond)
	require.NoError(t, err)

	// Push 8 seconds of audio through the buffer.
	for i := 0; i < 8; i++ {
		publishSamples(bus, sampleRate, float32(i)/10)
	}

	// Requesting more than the buffer bound can never be satisfied: the
	// fill drains the queue, trims to the bound and reports an underrun.
	assert.Nil(t, sub.ReadSamples(sampleRate*SubscriberBufferSeconds+500))

	stats := sub.Stats()
	assert.Equal(t, sampleRate*SubscriberBufferSeconds, stats.BufferSamples,
		"buffer is trimmed to the five-second bound, keeping the newest audio")
	assert.InDelta(t, float64(SubscriberBufferSeconds), stats.BufferSeconds, 0.001)

	// The surviving audio is the tail of what was published.
	recent := sub.GetRecent(10)
	require.NotNil(t, recent)
	assert.InDelta(t, 0.7, recent[0], 1e-6)
}

func TestStatsAccounting(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	sub, err := NewSubscriberAdapter(bus, "reader", 16000, 0)
	require.NoError(t, err)

	attempts := 5
	reads := 0
	for i := 0; i < attempts; i++ {
		if i%2 == 0 {
			publishSamples(bus, 100, 0.2)
		}
		if sub.ReadSamples(100) != nil {
			reads++
		}
	}

	stats := sub.Stats()
	assert.Equal(t, uint64(attempts), stats.TotalReads)
	assert.Equal(t, uint64(attempts), uint64(reads)+stats.UnderrunCount,
		"reads plus underruns equals attempts")
}

func TestHealthClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		reads     uint64
		underruns uint64
		expected  string
	}{
		{"no reads", 0, 0, "good"},
		{"clean", 1000, 0, "good"},
		{"under one percent", 1000, 9, "good"},
		{"degraded", 1000, 30, "degraded"},
		{"poor", 1000, 100, "poor"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc := tc
			t.Parallel()

			bus := NewBroadcastBus("test-bus-"+tc.name, 10)
			sub, err := NewSubscriberAdapter(bus, "reader", 16000, 200*time.Millisecond)
			require.NoError(t, err)

			sub.mu.Lock()
			sub.totalReads = tc.reads
			sub.underrunCount = tc.underruns
			sub.mu.Unlock()

			assert.Equal(t, tc.expected, sub.Stats().Health)
		})
	}
}

func TestUnsubscribeReleasesSubscription(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	sub, err := NewSubscriberAdapter(bus, "reader", 16000, 200*time.Millisecond)
	require.NoError(t, err)

	sub.Unsubscribe()
	assert.Equal(t, 0, bus.Stats().Subscribers)

	// A fresh subscription under the same id works again.
	_, err = NewSubscriberAdapter(bus, "reader", 16000, 200*time.Millisecond)
	assert.NoError(t, err)
}
