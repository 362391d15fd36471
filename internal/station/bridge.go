package station

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tphakala/alertstation/internal/decoder"
	"github.com/tphakala/alertstation/internal/logging"
	"github.com/tphakala/alertstation/internal/playout"
	"github.com/tphakala/alertstation/internal/streamwav"
)

// AlertBridge turns decoded alert events into playout queue items. The
// full alert pipeline (CAP parsing, audio assembly) lives outside the
// core; this bridge covers locally decoded headers that carry their own
// captured audio.
type AlertBridge struct {
	queue      *playout.Queue
	sets       playout.PrecedenceSets
	captureDir string
	sampleRate int

	logger *slog.Logger
}

// NewAlertBridge creates a bridge writing captured alert audio under
// captureDir.
func NewAlertBridge(queue *playout.Queue, sets playout.PrecedenceSets, captureDir string, sampleRate int) *AlertBridge {
	logger := logging.ForService("station")
	if logger == nil {
		logger = slog.Default()
	}

	return &AlertBridge{
		queue:      queue,
		sets:       sets,
		captureDir: captureDir,
		sampleRate: sampleRate,
		logger:     logger.With("component", "alert_bridge"),
	}
}

// HandleAlert is the decoder.AlertCallback: it persists the captured
// audio, builds a prioritised item and enqueues it, interrupting current
// playback when the preemption predicate demands it.
func (b *AlertBridge) HandleAlert(event decoder.AlertEvent) {
	audioPath := ""
	if len(event.CapturedAudio) > 0 {
		path, err := b.saveCapturedAudio(event)
		if err != nil {
			b.logger.Error("failed to persist captured alert audio",
				"event_code", event.EventCode, "error", err)
		} else {
			audioPath = path
		}
	}

	if audioPath == "" {
		b.logger.Info("decoded alert carried no playable audio, not enqueued",
			"event_code", event.EventCode,
			"source", event.SourceName)
		return
	}

	item := playout.Item{
		Precedence:      playout.DeterminePrecedence(event.EventCode, "Public", "", b.sets),
		Severity:        playout.SeverityUnknown,
		Urgency:         playout.UrgencyUnknown,
		OriginTimestamp: event.DetectedAt,
		EventCode:       event.EventCode,
		SAMEHeader:      string(event.RawHeader),
		AudioPath:       audioPath,
		Metadata: map[string]any{
			"originator":     event.Originator,
			"source":         event.SourceName,
			"location_codes": event.LocationCodes,
		},
	}

	shouldPreempt := b.queue.Enqueue(item, true)
	if shouldPreempt {
		b.logger.Warn("enqueued alert preempts current playback",
			"event_code", event.EventCode)
	}
}

// saveCapturedAudio writes the event's audio as a WAV file and returns
// its path.
func (b *AlertBridge) saveCapturedAudio(event decoder.AlertEvent) (string, error) {
	if err := os.MkdirAll(b.captureDir, 0o755); err != nil { //nolint:gosec // accept 0o755 for now
		return "", err
	}

	name := time.Now().UTC().Format("20060102T150405Z") + "_" + event.EventCode + ".wav"
	path := filepath.Join(b.captureDir, name)

	file, err := os.Create(path) //nolint:gosec // path assembled from timestamp and event code
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			b.logger.Warn("error closing capture file", "path", path, "error", closeErr)
		}
	}()

	writer := streamwav.NewWriter(file, b.sampleRate, 1)
	if err := writer.WriteSamples(event.CapturedAudio); err != nil {
		return "", err
	}

	b.logger.Info("captured alert audio saved",
		"path", path,
		"samples", len(event.CapturedAudio))
	return path, nil
}
