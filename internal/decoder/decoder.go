// Package decoder runs a stateful alert-header decoder continuously over
// the live broadcast bus, emitting alert events without losing sync across
// source restarts.
package decoder

import (
	"time"
)

// ComponentDecoder is the component tag used in enhanced errors.
const ComponentDecoder = "decoder"

// AlertEvent is emitted by the stream decoder when a complete digital
// alert header has been received. Immutable once emitted.
type AlertEvent struct {
	DetectedAt    time.Time
	SourceName    string
	EventCode     string   // three-letter event code
	Originator    string
	LocationCodes []string // 6-digit numeric location codes
	RawHeader     []byte
	CapturedAudio []float32 // optional capture of the surrounding audio
}

// AlertCallback receives decoded alert events. Callbacks are dispatched on
// a bounded worker pool and must not block for more than a few
// milliseconds.
type AlertCallback func(AlertEvent)

// StreamDecoder is the external stateful byte-stream decoder contract: it
// consumes float32 samples, maintains its own sync state, and returns zero
// or more complete events per feed.
type StreamDecoder interface {
	// Feed consumes a block of samples and returns any events completed
	// by it.
	Feed(samples []float32) []AlertEvent

	// Synced reports whether the decoder has bit-level sync.
	Synced() bool

	// InMessage reports whether the decoder is inside a message body.
	InMessage() bool
}

// SourceController is the slice of the ingest controller the decoder task
// needs for watchdog recovery.
type SourceController interface {
	ActiveSource() string
	EnsureRunning(name, reason string) bool
}

// Status is a snapshot of the decoder task's state.
type Status struct {
	Running           bool
	AudioFlowing      bool
	SamplesProcessed  uint64
	SamplesPerSecond  float64
	RuntimeSeconds    float64
	DecoderSynced     bool
	DecoderInMessage  bool
	AlertsDetected    uint64
	LastActivity      time.Time
	TimeSinceActivity float64
	RestartCount      uint64
	WatchdogTimeout   float64
	Underruns         uint64
}
