package station

import (
	"math"
	"time"

	"github.com/tphakala/alertstation/internal/audiocore"
	"github.com/tphakala/alertstation/internal/decoder"
	"github.com/tphakala/alertstation/internal/playout"
)

// SanitizeDB clamps non-finite level values at the snapshot boundary:
// positive infinity becomes +120 dB, negative infinity -120 dB, and NaN
// -120 dB. The DSP path itself is left untouched.
func SanitizeDB(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return -120
	case math.IsInf(v, 1):
		return 120
	case math.IsInf(v, -1):
		return -120
	default:
		return v
	}
}

// SourceSnapshot is the per-source slice of the status surface.
type SourceSnapshot struct {
	Name         string
	Kind         string
	Status       audiocore.SourceStatus
	Enabled      bool
	Priority     uint32
	ErrorMessage string
	Metrics      MetricsSnapshot
	HealthScore  float64
	LevelTrend   string
}

// MetricsSnapshot mirrors AudioMetrics with sanitised numeric fields.
type MetricsSnapshot struct {
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

// PlayoutSnapshot is the playout slice of the status surface.
type PlayoutSnapshot struct {
	QueueSize       int
	CurrentItem     *playout.Item
	NextItem        *playout.Item
	CompletedCount  int
	RecentCompleted []playout.Item

	WorkerRunning   bool
	HasPlayer       bool
	HasGPIO         bool
	CurrentPlayback bool
	RecentEvents    []playout.Event
}

// Snapshot is the single immutable status structure consumed by the web
// and analytics collaborators. It is always available, even when
// individual components are failed or stopped.
type Snapshot struct {
	Timestamp    time.Time
	ActiveSource string
	Sources      []SourceSnapshot
	Bus          audiocore.BusStats
	Decoder      decoder.Status
	Playout      PlayoutSnapshot
}

// snapshotSource builds one sanitised per-source entry.
func snapshotSource(adapter *audiocore.Adapter) SourceSnapshot {
	config := adapter.Config()
	state := adapter.State()
	metrics := adapter.Metrics()
	health := adapter.Health().Status()

	return SourceSnapshot{
		Name:         config.Name,
		Kind:         config.Kind,
		Status:       state.Status,
		Enabled:      config.Enabled,
		Priority:     config.Priority,
		ErrorMessage: state.LastError,
		Metrics: MetricsSnapshot{
			Timestamp:         metrics.Timestamp,
			PeakDB:            SanitizeDB(metrics.PeakDB),
			RMSDB:             SanitizeDB(metrics.RMSDB),
			SampleRate:        metrics.SampleRate,
			Channels:          metrics.Channels,
			FramesCaptured:    metrics.FramesCaptured,
			SilenceDetected:   metrics.SilenceDetected,
			BufferUtilization: metrics.BufferUtilization,
			Metadata:          metrics.Metadata,
		},
		HealthScore: health.HealthScore,
		LevelTrend:  health.Trend.Direction,
	}
}
