// Package realtime implements the subcommand that runs the full station
// runtime until interrupted.
package realtime

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/alertstation/internal/conf"
	"github.com/tphakala/alertstation/internal/decoder"
	"github.com/tphakala/alertstation/internal/logging"
	"github.com/tphakala/alertstation/internal/playout"
	"github.com/tphakala/alertstation/internal/station"
)

// Command returns the realtime subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "realtime",
		Short: "Run continuous audio monitoring and alert playout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	logging.Init()
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	logger := logging.ForService("realtime")

	// The station is built around the external alert-header decoder; when
	// none is linked in, the null decoder keeps the ingest and playout
	// pipelines fully operational.
	var streamDecoder decoder.StreamDecoder = decoder.NullDecoder{}

	var bridge *station.AlertBridge
	runtime, err := station.New(settings, streamDecoder, func(event decoder.AlertEvent) {
		if bridge != nil {
			bridge.HandleAlert(event)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to build station runtime: %w", err)
	}

	sets := playout.NewPrecedenceSets(settings.Playout.StateEventCodes, settings.Playout.NationalEventCodes)
	bridge = station.NewAlertBridge(runtime.Queue(), sets, "captures", settings.Decoder.SampleRate)

	runtime.Start()
	logger.Info("alertstation running", "node", settings.Main.Name)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	status := time.NewTicker(time.Minute)
	defer status.Stop()

	for {
		select {
		case sig := <-quit:
			logger.Info("received signal, shutting down", "signal", sig.String())
			runtime.Stop()
			return nil
		case <-status.C:
			snapshot := runtime.Snapshot()
			logger.Info("status",
				"active_source", snapshot.ActiveSource,
				"bus_published", snapshot.Bus.Published,
				"bus_dropped", snapshot.Bus.Dropped,
				"queue_size", snapshot.Playout.QueueSize,
				"alerts_detected", snapshot.Decoder.AlertsDetected)
		}
	}
}
