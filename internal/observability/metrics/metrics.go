// Package metrics provides prometheus collectors for the audio core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AudioMetrics holds the ingest-side collectors.
type AudioMetrics struct {
	chunksPublishedTotal *prometheus.CounterVec
	chunksDroppedTotal   prometheus.Counter
	underrunsTotal       *prometheus.CounterVec
	sourceHealthScore    *prometheus.GaugeVec
	sourceRMSDB          *prometheus.GaugeVec
	sourceRestartsTotal  *prometheus.CounterVec
}

// NewAudioMetrics creates and registers the ingest collectors.
func NewAudioMetrics(registry *prometheus.Registry) (*AudioMetrics, error) {
	m := &AudioMetrics{
		chunksPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertstation_audio_chunks_published_total",
			Help: "Audio chunks published to the broadcast bus per source",
		}, []string{"source"}),
		chunksDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertstation_audio_chunks_dropped_total",
			Help: "Chunks dropped from slow subscriber queues",
		}),
		underrunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertstation_audio_underruns_total",
			Help: "Subscriber read underruns per subscriber",
		}, []string{"subscriber"}),
		sourceHealthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alertstation_source_health_score",
			Help: "Rolling health score per source, 0-100",
		}, []string{"source"}),
		sourceRMSDB: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alertstation_source_rms_db",
			Help: "Latest RMS level per source in dBFS",
		}, []string{"source"}),
		sourceRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertstation_source_restarts_total",
			Help: "Source adapter restarts per source",
		}, []string{"source"}),
	}

	collectors := []prometheus.Collector{
		m.chunksPublishedTotal,
		m.chunksDroppedTotal,
		m.underrunsTotal,
		m.sourceHealthScore,
		m.sourceRMSDB,
		m.sourceRestartsTotal,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordChunkPublished counts one published chunk.
func (m *AudioMetrics) RecordChunkPublished(source string) {
	m.chunksPublishedTotal.WithLabelValues(source).Inc()
}

// RecordChunksDropped counts dropped chunks.
func (m *AudioMetrics) RecordChunksDropped(n float64) {
	m.chunksDroppedTotal.Add(n)
}

// RecordUnderrun counts one subscriber underrun.
func (m *AudioMetrics) RecordUnderrun(subscriber string) {
	m.underrunsTotal.WithLabelValues(subscriber).Inc()
}

// UpdateSourceHealth records the latest health score and RMS level.
func (m *AudioMetrics) UpdateSourceHealth(source string, score, rmsDB float64) {
	m.sourceHealthScore.WithLabelValues(source).Set(score)
	m.sourceRMSDB.WithLabelValues(source).Set(rmsDB)
}

// RecordSourceRestart counts one adapter restart.
func (m *AudioMetrics) RecordSourceRestart(source string) {
	m.sourceRestartsTotal.WithLabelValues(source).Inc()
}

// PlayoutMetrics holds the playout-side collectors.
type PlayoutMetrics struct {
	alertsDecodedTotal  prometheus.Counter
	playoutsTotal       *prometheus.CounterVec
	playoutLatencyMs    prometheus.Histogram
	queueDepth          prometheus.Gauge
	decoderRestartsTotal prometheus.Counter
}

// NewPlayoutMetrics creates and registers the playout collectors.
func NewPlayoutMetrics(registry *prometheus.Registry) (*PlayoutMetrics, error) {
	m := &PlayoutMetrics{
		alertsDecodedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertstation_alerts_decoded_total",
			Help: "Alert headers decoded from the live stream",
		}),
		playoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertstation_playouts_total",
			Help: "Playout outcomes by terminal status",
		}, []string{"status"}),
		playoutLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertstation_playout_latency_ms",
			Help:    "End-to-end playout latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertstation_playout_queue_depth",
			Help: "Pending items in the playout queue",
		}),
		decoderRestartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertstation_decoder_watchdog_restarts_total",
			Help: "Source restarts requested by the decoder watchdog",
		}),
	}

	collectors := []prometheus.Collector{
		m.alertsDecodedTotal,
		m.playoutsTotal,
		m.playoutLatencyMs,
		m.queueDepth,
		m.decoderRestartsTotal,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordAlertDecoded counts one decoded alert.
func (m *PlayoutMetrics) RecordAlertDecoded() {
	m.alertsDecodedTotal.Inc()
}

// RecordPlayout counts one terminal playout event and its latency.
func (m *PlayoutMetrics) RecordPlayout(status string, latencyMs float64) {
	m.playoutsTotal.WithLabelValues(status).Inc()
	if latencyMs > 0 {
		m.playoutLatencyMs.Observe(latencyMs)
	}
}

// SetQueueDepth records the pending queue size.
func (m *PlayoutMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// RecordDecoderRestart counts one watchdog-driven restart request.
func (m *PlayoutMetrics) RecordDecoderRestart() {
	m.decoderRestartsTotal.Inc()
}
