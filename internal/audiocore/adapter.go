package audiocore

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/tphakala/alertstation/internal/errors"
	"github.com/tphakala/alertstation/internal/logging"
)

// CaptureHandle is the kind-specific capture implementation behind an
// adapter. Implementations decode transport data into interleaved float32
// PCM at the configured sample rate; resampling and channel conversion are
// not part of the contract.
type CaptureHandle interface {
	// Open acquires the capture resource.
	Open() error

	// ReadChunk returns the next decoded chunk, or nil when no complete
	// chunk is available yet. hadActivity reports whether any transport
	// bytes were consumed, so the capture loop can distinguish a partial
	// decode from a truly idle source. Errors are treated as transient
	// and drive the reconnect path.
	ReadChunk() (samples []float32, hadActivity bool, err error)

	// Metadata returns transport metadata to expose through AudioMetrics,
	// or nil. Must never block the audio path.
	Metadata() map[string]any

	// Close releases the capture resource. Idempotent.
	Close() error
}

// Adapter turns one external input into a validated stream of AudioChunks,
// publishes them to the broadcast bus and exposes metrics and
// visualisation snapshots. A non-stopped adapter owns exactly one live
// capture goroutine; status transitions happen only on the adapter's own
// control path.
type Adapter struct {
	config SourceConfig
	handle CaptureHandle
	bus    *BroadcastBus

	health      *HealthMonitor
	waveform    *waveformBuffer
	spectrogram *spectrogramBuffer

	// Internal bounded queue serving the legacy pull interface.
	pullQueue *subscriberQueue

	mu                sync.Mutex
	state             SourceState
	metrics           AudioMetrics
	lastMetricsUpdate time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	logger *slog.Logger
}

// NewAdapter creates an adapter for the given source using the provided
// capture handle.
func NewAdapter(config SourceConfig, handle CaptureHandle, bus *BroadcastBus) *Adapter {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "source_adapter", "source", config.Name, "kind", config.Kind)

	return &Adapter{
		config:      config,
		handle:      handle,
		bus:         bus,
		health:      NewHealthMonitor(config.Name, config.SilenceThresholdDB, time.Duration(config.SilenceDurationSeconds*float64(time.Second))),
		waveform:    newWaveformBuffer(WaveformSize),
		spectrogram: newSpectrogramBuffer(SpectrogramFFTSize, SpectrogramHistory),
		pullQueue:   newSubscriberQueue(AdapterQueueSize),
		state:       SourceState{Status: StatusStopped},
		metrics: AudioMetrics{
			PeakDB:     -120,
			RMSDB:      -120,
			SampleRate: config.SampleRate,
			Channels:   config.Channels,
		},
		logger: logger,
	}
}

// Config returns the immutable source descriptor.
func (a *Adapter) Config() SourceConfig {
	return a.config
}

// Name returns the source name.
func (a *Adapter) Name() string {
	return a.config.Name
}

// Health returns the source's health monitor.
func (a *Adapter) Health() *HealthMonitor {
	return a.health
}

// State returns a copy of the runtime state.
func (a *Adapter) State() SourceState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Status returns the current operational status.
func (a *Adapter) Status() SourceStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Status
}

// Start transitions Stopped -> Starting -> Running and launches the
// capture goroutine. It returns false without side effects when the
// adapter is not stopped.
func (a *Adapter) Start() bool {
	a.mu.Lock()
	if a.state.Status != StatusStopped {
		a.mu.Unlock()
		a.logger.Warn("start requested but source is not stopped", "status", a.state.Status)
		return false
	}
	a.state.Status = StatusStarting
	a.state.LastError = ""
	a.state.ReconnectAttempts = 0
	a.state.StartTime = time.Now()
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	stopCh, doneCh := a.stopCh, a.doneCh
	a.mu.Unlock()

	go a.captureLoop(stopCh, doneCh)

	a.logger.Info("source starting")
	return true
}

// Stop transitions any state to Stopped. It guarantees the capture
// goroutine has exited (bounded by StopJoinTimeout) and discards all
// chunks pending in the adapter's internal queue.
func (a *Adapter) Stop() {
	a.mu.Lock()
	if a.state.Status == StatusStopped {
		a.mu.Unlock()
		return
	}
	stopCh, doneCh := a.stopCh, a.doneCh
	a.mu.Unlock()

	a.logger.Info("stopping source")
	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}

	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(StopJoinTimeout):
			a.logger.Warn("capture goroutine did not exit within timeout")
		}
	}

	a.pullQueue.flush()

	a.mu.Lock()
	a.state.Status = StatusStopped
	a.state.LastError = ""
	a.mu.Unlock()

	a.logger.Info("source stopped")
}

// Restart stops and restarts the source with a bounded delay and
// increments the restart counter.
func (a *Adapter) Restart(reason string) bool {
	a.logger.Info("restarting source", "reason", reason)
	a.Stop()
	time.Sleep(100 * time.Millisecond)

	a.mu.Lock()
	a.state.RestartCount++
	a.mu.Unlock()

	return a.Start()
}

// Metrics returns a consistent copy of the latest metrics snapshot.
func (a *Adapter) Metrics() AudioMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.metrics
	if a.metrics.Metadata != nil {
		m.Metadata = make(map[string]any, len(a.metrics.Metadata))
		maps.Copy(m.Metadata, a.metrics.Metadata)
	}
	return m
}

// WaveformSnapshot returns a copy of the recent-waveform buffer.
func (a *Adapter) WaveformSnapshot() []float32 {
	return a.waveform.snapshot()
}

// SpectrogramSnapshot returns a copy of the waterfall history.
func (a *Adapter) SpectrogramSnapshot() [][]float32 {
	return a.spectrogram.snapshot()
}

// GetAudioChunk serves the legacy pull interface for in-process consumers
// that do not subscribe to the broadcast bus.
func (a *Adapter) GetAudioChunk(timeout time.Duration) (AudioChunk, bool) {
	return a.pullQueue.popWait(timeout)
}

// captureLoop runs on the adapter's capture goroutine.
func (a *Adapter) captureLoop(stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	if err := a.handle.Open(); err != nil {
		a.failCapture(err, "open")
		return
	}
	defer func() {
		if err := a.handle.Close(); err != nil {
			a.logger.Warn("error closing capture handle", "error", err)
		}
	}()

	a.mu.Lock()
	if a.state.Status == StatusStarting {
		a.state.Status = StatusRunning
	}
	a.mu.Unlock()

	a.logger.Debug("capture loop started")

	for {
		select {
		case <-stopCh:
			a.logger.Debug("capture loop stopping")
			return
		default:
		}

		samples, hadActivity, err := a.handle.ReadChunk()
		if err != nil {
			if !a.reconnect(stopCh, err) {
				return
			}
			continue
		}

		if samples == nil {
			// Partial decode keeps looping without sleep; an idle source
			// sleeps briefly to prevent busy-spin.
			if !hadActivity {
				time.Sleep(IdleSleep)
			}
			continue
		}

		a.resetReconnects()
		a.processChunk(ClipSamples(samples))
	}
}

// processChunk publishes one decoded chunk and updates all observers.
func (a *Adapter) processChunk(samples []float32) {
	chunk := AudioChunk{
		Samples:    samples,
		SampleRate: a.config.SampleRate,
		Channels:   a.config.Channels,
		Source:     a.config.Name,
		Timestamp:  time.Now(),
	}

	levels, _ := a.health.ProcessSamples(samples)
	a.waveform.update(samples)
	a.spectrogram.update(samples)

	a.mu.Lock()
	a.state.FramesCaptured += uint64(len(samples) / a.config.Channels)
	a.state.LastChunkTime = chunk.Timestamp

	if time.Since(a.lastMetricsUpdate) >= MetricsUpdateInterval {
		a.metrics = AudioMetrics{
			Timestamp:         chunk.Timestamp,
			PeakDB:            levels.PeakDB,
			RMSDB:             levels.RMSDB,
			SampleRate:        a.config.SampleRate,
			Channels:          a.config.Channels,
			FramesCaptured:    a.state.FramesCaptured,
			SilenceDetected:   a.health.Silence.IsSilent(),
			BufferUtilization: float64(a.pullQueue.len()) / float64(AdapterQueueSize),
			Metadata:          a.handle.Metadata(),
		}
		a.lastMetricsUpdate = chunk.Timestamp
	}
	a.mu.Unlock()

	// Pull queue first so legacy consumers see the chunk even under
	// publish pressure, then fan out.
	a.pullQueue.push(chunk)
	a.bus.Publish(chunk)
}

// reconnect handles a transient capture error: close the handle, enter the
// disconnected state, wait, and reopen. It returns false once the
// consecutive-failure cap is exhausted or stop was requested.
func (a *Adapter) reconnect(stopCh chan struct{}, cause error) bool {
	_ = a.handle.Close()

	a.mu.Lock()
	a.state.Status = StatusDisconnected
	a.state.ReconnectAttempts++
	attempts := a.state.ReconnectAttempts
	a.mu.Unlock()

	if attempts > MaxReconnectAttempts {
		a.failCapture(errors.New(ErrCaptureFailed).
			Component(ComponentAudioCore).
			Category(errors.CategoryCapture).
			Context("source", a.config.Name).
			Context("attempts", attempts).
			Context("cause", cause.Error()).
			Build(), "reconnect")
		return false
	}

	a.logger.Warn("capture error, reconnecting",
		"error", cause,
		"attempt", attempts,
		"max_attempts", MaxReconnectAttempts)

	select {
	case <-stopCh:
		return false
	case <-time.After(ReconnectDelay):
	}

	if err := a.handle.Open(); err != nil {
		a.logger.Warn("reopen failed", "error", err, "attempt", attempts)
		return true
	}

	a.mu.Lock()
	a.state.Status = StatusRunning
	a.mu.Unlock()
	a.logger.Info("capture reconnected", "attempts", attempts)
	return true
}

// resetReconnects clears the consecutive-failure counter after a
// successful read.
func (a *Adapter) resetReconnects() {
	a.mu.Lock()
	if a.state.ReconnectAttempts != 0 {
		a.state.ReconnectAttempts = 0
	}
	a.mu.Unlock()
}

// failCapture records a fatal capture error. The failure stays within this
// adapter; other sources, the bus and the playout side are unaffected.
func (a *Adapter) failCapture(err error, operation string) {
	a.mu.Lock()
	a.state.Status = StatusError
	a.state.LastError = err.Error()
	a.mu.Unlock()

	a.logger.Error("capture failed",
		"operation", operation,
		"error", err)
}
