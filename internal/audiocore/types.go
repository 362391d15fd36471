package audiocore

import (
	"time"

	"github.com/tphakala/alertstation/internal/conf"
)

// SourceStatus is the operational status of a source adapter.
type SourceStatus string

const (
	StatusStopped      SourceStatus = "stopped"
	StatusStarting     SourceStatus = "starting"
	StatusRunning      SourceStatus = "running"
	StatusError        SourceStatus = "error"
	StatusDisconnected SourceStatus = "disconnected"
)

// AudioChunk is an immutable frame of interleaved float32 PCM in [-1, 1].
// Once published it is never mutated; the bus copies on fan-out so
// multi-consumer code never shares mutable buffers.
type AudioChunk struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Source     string
	Timestamp  time.Time
}

// Len returns the number of samples in the chunk.
func (c *AudioChunk) Len() int {
	return len(c.Samples)
}

// Clone returns a deep copy of the chunk.
func (c *AudioChunk) Clone() AudioChunk {
	samples := make([]float32, len(c.Samples))
	copy(samples, c.Samples)
	return AudioChunk{
		Samples:    samples,
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		Source:     c.Source,
		Timestamp:  c.Timestamp,
	}
}

// AudioMetrics is a per-source metrics snapshot. Updates are rate-limited
// to once per MetricsUpdateInterval per source.
type AudioMetrics struct {
	Timestamp         time.Time
	PeakDB            float64
	RMSDB             float64
	SampleRate        int
	Channels          int
	FramesCaptured    uint64
	SilenceDetected   bool
	BufferUtilization float64
	Metadata          map[string]any
}

// SourceState is the runtime status of one adapter, owned by the adapter
// and exposed only as copies.
type SourceState struct {
	Status            SourceStatus
	LastError         string
	ReconnectAttempts uint32
	RestartCount      uint32
	FramesCaptured    uint64
	StartTime         time.Time
	LastChunkTime     time.Time
}

// SourceConfig aliases the persisted registry entry so core consumers do
// not import conf directly everywhere.
type SourceConfig = conf.SourceConfig

// BusStats reports broadcast bus counters.
type BusStats struct {
	Name        string
	Subscribers int
	Published   uint64
	Dropped     uint64
}

// SubscriberStats reports SubscriberAdapter health counters.
type SubscriberStats struct {
	SubscriberID    string
	QueueLen        int
	BufferSamples   int
	BufferSeconds   float64
	SampleRate      int
	TotalReads      uint64
	UnderrunCount   uint64
	UnderrunRatePct float64
	LastAudioTime   time.Time
	Health          string // good, degraded, poor
}

// ClipSamples clamps every sample into [-1, 1] in place and returns the
// slice. Producers must clip, not wrap, on out-of-range samples.
func ClipSamples(samples []float32) []float32 {
	for i, s := range samples {
		if s > 1.0 {
			samples[i] = 1.0
		} else if s < -1.0 {
			samples[i] = -1.0
		}
	}
	return samples
}
