package audiocore

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/alertstation/internal/conf"
)

// fakeHandle is a scriptable capture handle for adapter tests.
type fakeHandle struct {
	mu         sync.Mutex
	openErr    error
	readErr    error
	chunk      []float32
	opens      int
	closes     int
	reads      int
	perReadGap time.Duration
}

func (h *fakeHandle) Open() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opens++
	return h.openErr
}

func (h *fakeHandle) ReadChunk() ([]float32, bool, error) {
	h.mu.Lock()
	readErr := h.readErr
	chunk := h.chunk
	gap := h.perReadGap
	h.reads++
	h.mu.Unlock()

	if gap > 0 {
		time.Sleep(gap)
	}
	if readErr != nil {
		return nil, false, readErr
	}
	if chunk == nil {
		return nil, false, nil
	}
	out := make([]float32, len(chunk))
	copy(out, chunk)
	return out, true, nil
}

func (h *fakeHandle) Metadata() map[string]any {
	return map[string]any{"fake": true}
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

func (h *fakeHandle) set(fn func(*fakeHandle)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h)
}

func testSourceConfig(name string) conf.SourceConfig {
	return conf.SourceConfig{
		Name:                   name,
		Kind:                   "stream",
		Enabled:                true,
		Priority:               10,
		SampleRate:             16000,
		Channels:               1,
		BufferFrames:           160,
		SilenceThresholdDB:     -60,
		SilenceDurationSeconds: 5,
	}
}

func waitForStatus(t *testing.T, adapter *Adapter, status SourceStatus, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if adapter.Status() == status {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return adapter.Status() == status
}

func TestAdapterStartStopLifecycle(t *testing.T) {
	t.Parallel()

	handle := &fakeHandle{chunk: tone(160, 0.2), perReadGap: 5 * time.Millisecond}
	bus := NewBroadcastBus("test-bus", 100)
	adapter := NewAdapter(testSourceConfig("lifecycle"), handle, bus)

	assert.Equal(t, StatusStopped, adapter.Status())

	require.True(t, adapter.Start())
	assert.False(t, adapter.Start(), "start is rejected while not stopped")

	require.True(t, waitForStatus(t, adapter, StatusRunning, 2*time.Second))

	adapter.Stop()
	assert.Equal(t, StatusStopped, adapter.Status())
	adapter.Stop() // idempotent

	handle.mu.Lock()
	assert.Equal(t, 1, handle.opens)
	assert.GreaterOrEqual(t, handle.closes, 1)
	handle.mu.Unlock()
}

func TestAdapterPublishesToBus(t *testing.T) {
	t.Parallel()

	handle := &fakeHandle{chunk: tone(160, 0.2), perReadGap: 5 * time.Millisecond}
	bus := NewBroadcastBus("test-bus", 100)
	queue, err := bus.Subscribe("listener")
	require.NoError(t, err)

	adapter := NewAdapter(testSourceConfig("publisher"), handle, bus)
	require.True(t, adapter.Start())
	defer adapter.Stop()

	chunk, ok := queue.popWait(2 * time.Second)
	require.True(t, ok)
	assert.Len(t, chunk.Samples, 160)
	assert.Equal(t, "publisher", chunk.Source)
	assert.Equal(t, 16000, chunk.SampleRate)

	// The legacy pull interface sees the same stream.
	pulled, ok := adapter.GetAudioChunk(2 * time.Second)
	require.True(t, ok)
	assert.Len(t, pulled.Samples, 160)
}

func TestAdapterRestartIncrementsCounter(t *testing.T) {
	t.Parallel()

	handle := &fakeHandle{chunk: tone(160, 0.2), perReadGap: 5 * time.Millisecond}
	bus := NewBroadcastBus("test-bus", 100)
	adapter := NewAdapter(testSourceConfig("restarter"), handle, bus)

	require.True(t, adapter.Start())
	require.True(t, waitForStatus(t, adapter, StatusRunning, 2*time.Second))

	require.True(t, adapter.Restart("operator request"))
	require.True(t, waitForStatus(t, adapter, StatusRunning, 2*time.Second))

	state := adapter.State()
	assert.Equal(t, uint32(1), state.RestartCount)

	adapter.Stop()
}

func TestAdapterOpenFailureEntersErrorState(t *testing.T) {
	t.Parallel()

	handle := &fakeHandle{openErr: errors.New("device busy")}
	bus := NewBroadcastBus("test-bus", 100)
	adapter := NewAdapter(testSourceConfig("broken"), handle, bus)

	require.True(t, adapter.Start())
	require.True(t, waitForStatus(t, adapter, StatusError, 2*time.Second))

	state := adapter.State()
	assert.Contains(t, state.LastError, "device busy")
	adapter.Stop()
}

func TestAdapterReconnectExhaustionIsFatalToSourceOnly(t *testing.T) {
	t.Parallel()

	handle := &fakeHandle{readErr: errors.New("connection reset")}
	bus := NewBroadcastBus("test-bus", 100)
	adapter := NewAdapter(testSourceConfig("flaky"), handle, bus)

	healthy := NewAdapter(testSourceConfig("healthy"), &fakeHandle{chunk: tone(160, 0.2), perReadGap: 5 * time.Millisecond}, bus)
	require.True(t, healthy.Start())
	defer healthy.Stop()

	require.True(t, adapter.Start())

	// Five failed reconnects at 500 ms apiece before giving up.
	require.True(t, waitForStatus(t, adapter, StatusError, 10*time.Second))

	state := adapter.State()
	assert.Greater(t, state.ReconnectAttempts, uint32(MaxReconnectAttempts))

	// The failure stayed inside the adapter.
	assert.Equal(t, StatusRunning, healthy.Status())
	adapter.Stop()
}

func TestAdapterMetricsAndSnapshots(t *testing.T) {
	t.Parallel()

	handle := &fakeHandle{chunk: tone(160, 0.5), perReadGap: 5 * time.Millisecond}
	bus := NewBroadcastBus("test-bus", 100)
	adapter := NewAdapter(testSourceConfig("metered"), handle, bus)

	require.True(t, adapter.Start())
	defer adapter.Stop()

	require.True(t, waitFor2(t, 2*time.Second, func() bool {
		return adapter.Metrics().FramesCaptured > 0
	}))

	metrics := adapter.Metrics()
	assert.Equal(t, 16000, metrics.SampleRate)
	assert.Equal(t, 1, metrics.Channels)
	assert.False(t, metrics.SilenceDetected)
	assert.Equal(t, true, metrics.Metadata["fake"])
	assert.InDelta(t, -6.02, metrics.PeakDB, 1.0)

	waveform := adapter.WaveformSnapshot()
	assert.Len(t, waveform, WaveformSize)

	spectrogram := adapter.SpectrogramSnapshot()
	assert.Len(t, spectrogram, SpectrogramHistory)
	assert.Len(t, spectrogram[0], SpectrogramFFTSize/2)
}

// waitFor2 polls until the condition holds or the deadline passes.
func waitFor2(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
