package audiocore

import "time"

// ComponentAudioCore is the component tag used in enhanced errors.
const ComponentAudioCore = "audiocore"

const (
	// DefaultMaxQueuePerSubscriber bounds each subscriber's fan-out queue.
	DefaultMaxQueuePerSubscriber = 100

	// DefaultReadTimeout bounds SubscriberAdapter sample reads.
	DefaultReadTimeout = 500 * time.Millisecond

	// MinReadTimeout is the floor for configurable read timeouts.
	MinReadTimeout = 100 * time.Millisecond

	// SubscriberBufferSeconds bounds the SubscriberAdapter chunk buffer.
	SubscriberBufferSeconds = 5

	// AdapterQueueSize bounds the per-adapter internal chunk queue that
	// serves the legacy pull interface.
	AdapterQueueSize = 500

	// MetricsUpdateInterval rate-limits per-source metric updates.
	MetricsUpdateInterval = 100 * time.Millisecond

	// ReconnectDelay is the wait between capture reopen attempts.
	ReconnectDelay = 500 * time.Millisecond

	// MaxReconnectAttempts caps consecutive reopen failures before the
	// adapter gives up and enters the error state.
	MaxReconnectAttempts = 5

	// IdleSleep prevents busy-spin when a source yields no data.
	IdleSleep = time.Millisecond

	// StopJoinTimeout bounds waiting for a capture goroutine to exit.
	StopJoinTimeout = 5 * time.Second

	// WaveformSize is the number of samples kept for waveform snapshots.
	WaveformSize = 2048

	// SpectrogramHistory is the number of FFT frames kept for the waterfall.
	SpectrogramHistory = 100

	// SpectrogramFFTSize is the FFT window length; snapshots carry
	// SpectrogramFFTSize/2 bins per frame.
	SpectrogramFFTSize = 1024
)
