package sources

import (
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/alertstation/internal/audiocore"
	"github.com/tphakala/alertstation/internal/conf"
	"github.com/tphakala/alertstation/internal/errors"
	"github.com/tphakala/alertstation/internal/logging"
)

// fileHandle replays a WAV file as a live source, pacing chunks to real
// time. When looping is enabled the file restarts at EOF, which makes it
// useful as an always-on test or fallback source.
type fileHandle struct {
	config conf.SourceConfig
	path   string
	loop   bool

	file    *os.File
	decoder *wav.Decoder
	buf     *audio.IntBuffer
	divisor float32

	nextDue time.Time

	logger *slog.Logger
}

func newFileHandle(config conf.SourceConfig) (*fileHandle, error) {
	path := stringParam(config.KindSpecific, "path", "")
	if path == "" {
		return nil, errors.Newf("file source requires a path").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryConfiguration).
			Context("source", config.Name).
			Build()
	}

	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	return &fileHandle{
		config: config,
		path:   path,
		loop:   boolParam(config.KindSpecific, "loop", true),
		logger: logger.With("component", "file_capture", "source", config.Name, "path", path),
	}, nil
}

// Open opens and validates the WAV file.
func (h *fileHandle) Open() error {
	file, err := os.Open(h.path)
	if err != nil {
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("source", h.config.Name).
			Context("path", h.path).
			Build()
	}

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		_ = file.Close()
		return errors.Newf("input is not a valid WAV audio file").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("source", h.config.Name).
			Context("path", h.path).
			Build()
	}

	switch decoder.BitDepth {
	case 16:
		h.divisor = 32768.0
	case 24:
		h.divisor = 8388608.0
	case 32:
		h.divisor = 2147483648.0
	default:
		_ = file.Close()
		return errors.Newf("unsupported WAV bit depth %d", decoder.BitDepth).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("source", h.config.Name).
			Context("path", h.path).
			Build()
	}

	h.file = file
	h.decoder = decoder
	h.buf = &audio.IntBuffer{
		Data: make([]int, h.config.BufferFrames*h.config.Channels),
		Format: &audio.Format{
			SampleRate:  int(decoder.SampleRate),
			NumChannels: int(decoder.NumChans),
		},
	}
	h.nextDue = time.Now()

	h.logger.Info("file source opened",
		"sample_rate", decoder.SampleRate,
		"channels", decoder.NumChans,
		"bit_depth", decoder.BitDepth,
		"loop", h.loop)
	return nil
}

// ReadChunk returns the next paced chunk of the file.
func (h *fileHandle) ReadChunk() ([]float32, bool, error) {
	if h.decoder == nil {
		return nil, false, errors.New(audiocore.ErrNotRunning).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryCapture).
			Context("source", h.config.Name).
			Build()
	}

	// Pace playback to real time so downstream consumers see a live
	// stream, not a burst.
	if wait := time.Until(h.nextDue); wait > 0 {
		time.Sleep(wait)
	}

	n, err := h.decoder.PCMBuffer(h.buf)
	if err != nil {
		return nil, false, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("source", h.config.Name).
			Context("path", h.path).
			Build()
	}

	if n == 0 {
		if !h.loop {
			// A finished non-looping file idles rather than erroring so
			// the adapter does not spin through reconnects.
			return nil, false, nil
		}
		if err := h.reopen(); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	samples := make([]float32, n)
	for i, v := range h.buf.Data[:n] {
		samples[i] = float32(v) / h.divisor
	}

	frames := n / h.config.Channels
	h.nextDue = h.nextDue.Add(time.Duration(frames) * time.Second / time.Duration(h.config.SampleRate))

	return samples, true, nil
}

// reopen restarts the file for looped playback.
func (h *fileHandle) reopen() error {
	_ = h.file.Close()
	file, err := os.Open(h.path)
	if err != nil {
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("source", h.config.Name).
			Context("path", h.path).
			Build()
	}
	h.file = file
	h.decoder = wav.NewDecoder(file)
	h.decoder.ReadInfo()
	h.logger.Debug("file source looped")
	return nil
}

// Metadata reports the file path and loop mode.
func (h *fileHandle) Metadata() map[string]any {
	return map[string]any{
		"path": h.path,
		"loop": h.loop,
	}
}

// Close releases the file. Idempotent.
func (h *fileHandle) Close() error {
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	h.decoder = nil
	return err
}
