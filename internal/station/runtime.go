// Package station is the composition root of the alert-station audio
// core. A single Runtime value owns the ingest controller, the continuous
// decoder task and the playout worker; all collaborators receive
// references instead of reaching for globals.
package station

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/alertstation/internal/audiocore"
	"github.com/tphakala/alertstation/internal/audiocore/sources"
	"github.com/tphakala/alertstation/internal/conf"
	"github.com/tphakala/alertstation/internal/decoder"
	"github.com/tphakala/alertstation/internal/gpio"
	"github.com/tphakala/alertstation/internal/logging"
	"github.com/tphakala/alertstation/internal/observability/metrics"
	"github.com/tphakala/alertstation/internal/playout"
)

// Runtime owns all long-lived core components.
type Runtime struct {
	settings *conf.Settings

	controller *audiocore.Controller
	decoder    *decoder.Task
	queue      *playout.Queue
	worker     *playout.Worker
	relay      *gpio.RelayController

	registry       *prometheus.Registry
	audioMetrics   *metrics.AudioMetrics
	playoutMetrics *metrics.PlayoutMetrics

	logger *slog.Logger
}

// New builds the full runtime from settings. The stream decoder and the
// alert sink are injected: the decoder is the external bit-stream
// collaborator and the sink receives filtered alert events (typically the
// bridge that converts them into playout items).
func New(settings *conf.Settings, streamDecoder decoder.StreamDecoder, alertSink decoder.AlertCallback) (*Runtime, error) {
	logger := logging.ForService("station")
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	audioMetrics, err := metrics.NewAudioMetrics(registry)
	if err != nil {
		return nil, err
	}
	playoutMetrics, err := metrics.NewPlayoutMetrics(registry)
	if err != nil {
		return nil, err
	}

	bus := audiocore.NewBroadcastBus(settings.Audio.BroadcastName, settings.Audio.MaxQueuePerSubscriber)
	controller := audiocore.NewController(bus)

	for _, sourceConfig := range settings.Audio.Sources {
		handle, err := sources.NewCaptureHandle(sourceConfig, settings.Receivers)
		if err != nil {
			logger.Error("skipping source with invalid configuration",
				"source", sourceConfig.Name, "error", err)
			continue
		}
		controller.Add(audiocore.NewAdapter(sourceConfig, handle, bus))
	}

	queue := playout.NewQueue()

	var relay *gpio.RelayController
	var gpioController playout.GPIOController
	if settings.Playout.GPIOChip != "" {
		relay, err = gpio.NewRelayController(
			settings.Playout.GPIOChip,
			settings.Playout.GPIOLine,
			settings.Playout.GPIOActiveHigh)
		if err != nil {
			// GPIO failures are non-fatal; playout continues without
			// transmitter keying.
			logger.Error("gpio relay unavailable", "error", err)
		} else {
			gpioController = relay
		}
	}

	worker := playout.NewWorker(queue, settings.Playout.Player.Command, gpioController)
	worker.RegisterEventListener(func(event playout.Event) {
		switch event.Status {
		case playout.StatusCompleted, playout.StatusFailed, playout.StatusInterrupted:
			playoutMetrics.RecordPlayout(string(event.Status), event.LatencyMs)
		}
		playoutMetrics.SetQueueDepth(queue.Size())
	})

	r := &Runtime{
		settings:       settings,
		controller:     controller,
		queue:          queue,
		worker:         worker,
		relay:          relay,
		registry:       registry,
		audioMetrics:   audioMetrics,
		playoutMetrics: playoutMetrics,
		logger:         logger,
	}

	if settings.Decoder.Enabled && streamDecoder != nil {
		subscriberID := "alert-decoder-" + uuid.NewString()[:8]
		subscriber, err := audiocore.NewSubscriberAdapter(bus, subscriberID, settings.Decoder.SampleRate, 0)
		if err != nil {
			return nil, err
		}

		callback := decoder.NewLocationFilter(settings.Decoder.LocationCodes, func(event decoder.AlertEvent) {
			playoutMetrics.RecordAlertDecoded()
			if alertSink != nil {
				alertSink(event)
			}
		})

		r.decoder = decoder.New(subscriber, streamDecoder, callback, controller, decoder.Config{
			SampleRate:      settings.Decoder.SampleRate,
			WatchdogTimeout: time.Duration(settings.Decoder.WatchdogSeconds) * time.Second,
			MaxWorkers:      settings.Decoder.MaxWorkers,
		})
	}

	return r, nil
}

// Controller exposes the ingest controller.
func (r *Runtime) Controller() *audiocore.Controller {
	return r.controller
}

// Queue exposes the playout queue for the external alert pipeline.
func (r *Runtime) Queue() *playout.Queue {
	return r.queue
}

// Worker exposes the playout worker.
func (r *Runtime) Worker() *playout.Worker {
	return r.worker
}

// Registry exposes the prometheus registry for the metrics endpoint.
func (r *Runtime) Registry() *prometheus.Registry {
	return r.registry
}

// AudioMetrics exposes the ingest collectors.
func (r *Runtime) AudioMetrics() *metrics.AudioMetrics {
	return r.audioMetrics
}

// Start brings up all enabled sources, the decoder task and the playout
// worker.
func (r *Runtime) Start() {
	r.logger.Info("starting audio core",
		"sources", len(r.controller.List()),
		"decoder_enabled", r.decoder != nil)

	r.controller.StartAll()
	if r.decoder != nil {
		r.decoder.Start()
	}
	r.worker.Start()
}

// Stop shuts everything down in reverse order.
func (r *Runtime) Stop() {
	r.logger.Info("stopping audio core")

	r.worker.Stop(10 * time.Second)
	if r.decoder != nil {
		r.decoder.Stop()
	}
	r.controller.StopAll()

	if r.relay != nil {
		if err := r.relay.Close(); err != nil {
			r.logger.Warn("error closing gpio relay", "error", err)
		}
	}
}

// Snapshot assembles the single immutable status snapshot of the core.
func (r *Runtime) Snapshot() Snapshot {
	snapshot := Snapshot{
		Timestamp:    time.Now(),
		ActiveSource: r.controller.ActiveSource(),
		Bus:          r.controller.Bus().Stats(),
	}

	for _, adapter := range r.controller.List() {
		source := snapshotSource(adapter)
		r.audioMetrics.UpdateSourceHealth(source.Name, source.HealthScore, source.Metrics.RMSDB)
		snapshot.Sources = append(snapshot.Sources, source)
	}

	if r.decoder != nil {
		snapshot.Decoder = r.decoder.Status()
	}

	queueStatus := r.queue.Status()
	workerStatus := r.worker.Status()
	snapshot.Playout = PlayoutSnapshot{
		QueueSize:       queueStatus.Size,
		CurrentItem:     queueStatus.CurrentItem,
		NextItem:        queueStatus.NextItem,
		CompletedCount:  queueStatus.CompletedCount,
		RecentCompleted: queueStatus.RecentCompleted,
		WorkerRunning:   workerStatus.Running,
		HasPlayer:       workerStatus.HasPlayer,
		HasGPIO:         workerStatus.HasGPIO,
		CurrentPlayback: workerStatus.CurrentPlayback,
		RecentEvents:    workerStatus.RecentEvents,
	}

	return snapshot
}
