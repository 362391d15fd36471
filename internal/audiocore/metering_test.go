package audiocore

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tone fills a slice with a constant amplitude.
func tone(n int, amplitude float32) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return samples
}

// alertCollector gathers dispatched alerts.
type alertCollector struct {
	mu     sync.Mutex
	alerts []AudioAlert
}

func (c *alertCollector) collect(alert AudioAlert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
}

func (c *alertCollector) byLevel(level AlertLevel) []AudioAlert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []AudioAlert
	for _, a := range c.alerts {
		if a.Level == level {
			out = append(out, a)
		}
	}
	return out
}

func TestMeterLevels(t *testing.T) {
	t.Parallel()

	meter := NewAudioMeter(1024, 2*time.Second)

	// A full buffer of constant 0.5 amplitude: peak -6 dB, RMS -6 dB.
	levels := meter.ProcessSamples(tone(1024, 0.5))
	assert.InDelta(t, -6.02, levels.PeakDB, 0.1)
	assert.InDelta(t, -6.02, levels.RMSDB, 0.1)
	assert.InDelta(t, 0.5, levels.PeakLinear, 1e-6)
}

func TestMeterSilence(t *testing.T) {
	t.Parallel()

	meter := NewAudioMeter(256, 2*time.Second)
	levels := meter.ProcessSamples(tone(256, 0))

	// Zero input bottoms out at the dB floor, far below any threshold.
	assert.Less(t, levels.RMSDB, -100.0)
	assert.Less(t, levels.PeakDB, -100.0)
}

func TestSilenceDetectorImmediateAlertWithoutPriorSignal(t *testing.T) {
	t.Parallel()

	detector := NewSilenceDetector(-60, time.Second)
	collector := &alertCollector{}
	detector.AddAlertCallback(collector.collect)

	// First below-threshold sample on a source that never had signal
	// alerts immediately.
	detector.ProcessLevel(-80, "test")

	warnings := collector.byLevel(AlertWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "no prior signal")
	assert.True(t, detector.IsSilent())
}

func TestSilenceDetectorCycle(t *testing.T) {
	t.Parallel()

	// Zero duration: silence fires within one evaluation.
	detector := NewSilenceDetector(-60, 0)
	collector := &alertCollector{}
	detector.AddAlertCallback(collector.collect)

	// Establish signal first.
	detector.ProcessLevel(-20, "test")
	assert.False(t, detector.IsSilent())

	// Drop below threshold: with zero duration the alert is immediate.
	detector.ProcessLevel(-80, "test")
	assert.True(t, detector.IsSilent())
	require.Len(t, collector.byLevel(AlertWarning), 1)

	// Continued silence does not re-alert.
	detector.ProcessLevel(-80, "test")
	assert.Len(t, collector.byLevel(AlertWarning), 1)

	// Signal restored: exactly one info alert.
	detector.ProcessLevel(-20, "test")
	assert.False(t, detector.IsSilent())
	infos := collector.byLevel(AlertInfo)
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0].Message, "Signal restored")

	// Another restore is not re-announced.
	detector.ProcessLevel(-20, "test")
	assert.Len(t, collector.byLevel(AlertInfo), 1)
}

func TestSilenceDetectorHonoursDuration(t *testing.T) {
	t.Parallel()

	detector := NewSilenceDetector(-60, time.Hour)
	collector := &alertCollector{}
	detector.AddAlertCallback(collector.collect)

	detector.ProcessLevel(-20, "test")
	detector.ProcessLevel(-80, "test")

	assert.False(t, detector.IsSilent(), "silence shorter than the configured duration is tolerated")
	assert.Empty(t, collector.byLevel(AlertWarning))
}

func TestClippingDetector(t *testing.T) {
	t.Parallel()

	monitor := NewHealthMonitor("test", -60, time.Second)

	// Nine hot samples: below the alert threshold of ten.
	_, clipping := monitor.ProcessSamples(tone(9, 0.99))
	assert.False(t, clipping)

	// One more pushes the cumulative count over the threshold.
	_, clipping = monitor.ProcessSamples(tone(1, 0.99))
	assert.True(t, clipping)

	// The counter reset with the event.
	_, clipping = monitor.ProcessSamples(tone(9, 0.99))
	assert.False(t, clipping)
}

func TestHealthScoreBounds(t *testing.T) {
	t.Parallel()

	monitor := NewHealthMonitor("test", -60, 0)

	// Pathological input: clipping and instant silence accumulate
	// penalties, yet the score stays within [0, 100].
	for i := 0; i < 50; i++ {
		monitor.ProcessSamples(tone(100, 1.0))
		monitor.ProcessSamples(tone(100, 0))

		status := monitor.Status()
		assert.GreaterOrEqual(t, status.HealthScore, 0.0)
		assert.LessOrEqual(t, status.HealthScore, 100.0)
	}
}

func TestHealthScorePenalties(t *testing.T) {
	t.Parallel()

	monitor := NewHealthMonitor("test", -90, time.Hour)

	// Healthy level: roughly -10 dB RMS, no clipping, no silence.
	monitor.ProcessSamples(tone(1024, 0.3))
	assert.InDelta(t, 100.0, monitor.Status().HealthScore, 0.01)

	// Very quiet (but above the -90 threshold): dead-air penalty.
	quiet := NewHealthMonitor("quiet", -90, time.Hour)
	quiet.ProcessSamples(tone(1024, 0.001))
	assert.InDelta(t, 90.0, quiet.Status().HealthScore, 0.01)

	// Very hot signal: distortion penalty on top of clipping.
	hot := NewHealthMonitor("hot", -90, time.Hour)
	hot.ProcessSamples(tone(1024, 0.99))
	assert.InDelta(t, 70.0, hot.Status().HealthScore, 0.01)
}

func TestLevelTrend(t *testing.T) {
	t.Parallel()

	monitor := NewHealthMonitor("test", -120, time.Hour)

	// Rising amplitude over more than ten evaluations.
	for i := 1; i <= 12; i++ {
		monitor.ProcessSamples(tone(1024, float32(i)*0.05))
	}
	assert.Equal(t, "rising", monitor.Status().Trend.Direction)

	falling := NewHealthMonitor("falling", -120, time.Hour)
	for i := 12; i >= 1; i-- {
		falling.ProcessSamples(tone(1024, float32(i)*0.05))
	}
	assert.Equal(t, "falling", falling.Status().Trend.Direction)

	stable := NewHealthMonitor("stable", -120, time.Hour)
	for i := 0; i < 12; i++ {
		stable.ProcessSamples(tone(1024, 0.3))
	}
	assert.Equal(t, "stable", stable.Status().Trend.Direction)
}

func TestClipSamples(t *testing.T) {
	t.Parallel()

	samples := []float32{-2.5, -1.0, 0, 0.5, 1.0, 3.7}
	ClipSamples(samples)
	assert.Equal(t, []float32{-1.0, -1.0, 0, 0.5, 1.0, 1.0}, samples)
}

func TestLinearToDBFloor(t *testing.T) {
	t.Parallel()

	assert.False(t, math.IsInf(linearToDB(0), -1), "zero input is floored, not -Inf")
	assert.InDelta(t, -200, linearToDB(0), 0.01)
	assert.InDelta(t, 0, linearToDB(1), 0.01)
}
