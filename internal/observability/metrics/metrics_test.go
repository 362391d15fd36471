package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewAudioMetrics(registry)
	require.NoError(t, err)

	m.RecordChunkPublished("monitor-1")
	m.RecordChunkPublished("monitor-1")
	m.RecordChunksDropped(3)
	m.RecordUnderrun("alert-decoder")
	m.UpdateSourceHealth("monitor-1", 85, -12.5)
	m.RecordSourceRestart("monitor-1")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.chunksPublishedTotal.WithLabelValues("monitor-1")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.chunksDroppedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.underrunsTotal.WithLabelValues("alert-decoder")))
	assert.Equal(t, float64(85), testutil.ToFloat64(m.sourceHealthScore.WithLabelValues("monitor-1")))
	assert.Equal(t, float64(-12.5), testutil.ToFloat64(m.sourceRMSDB.WithLabelValues("monitor-1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sourceRestartsTotal.WithLabelValues("monitor-1")))
}

func TestPlayoutMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewPlayoutMetrics(registry)
	require.NoError(t, err)

	m.RecordAlertDecoded()
	m.RecordPlayout("completed", 1500)
	m.RecordPlayout("interrupted", 700)
	m.SetQueueDepth(4)
	m.RecordDecoderRestart()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.alertsDecodedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.playoutsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.playoutsTotal.WithLabelValues("interrupted")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decoderRestartsTotal))
}

func TestDoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewAudioMetrics(registry)
	require.NoError(t, err)
	_, err = NewAudioMetrics(registry)
	assert.Error(t, err)
}
