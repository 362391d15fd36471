package sources

import (
	"encoding/binary"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"

	"github.com/tphakala/alertstation/internal/audiocore"
	"github.com/tphakala/alertstation/internal/conf"
	"github.com/tphakala/alertstation/internal/errors"
	"github.com/tphakala/alertstation/internal/logging"
)

// squelchOpenMarginDB is the hysteresis margin above the squelch threshold
// required to reopen the carrier gate.
const squelchOpenMarginDB = 2.5

// sdrHandle captures demodulated PCM from the SDR service over TCP. The
// demodulation itself is external; this handle treats the receiver as a
// black box that produces signed 16-bit little-endian PCM. An optional
// carrier squelch with hysteresis zero-fills published chunks while the
// carrier is lost, so downstream consumers keep their clock.
type sdrHandle struct {
	config   conf.SourceConfig
	address  string
	receiver string

	squelchEnabled     bool
	squelchThresholdDB float64
	squelchOpenMs      int
	squelchCloseMs     int

	conn net.Conn

	mu         sync.Mutex
	squelchOpen       bool
	squelchLastChange time.Time
	openTimer         time.Time
	closeTimer        time.Time
	lastRMSDB         float64
	metadata          map[string]any

	logger *slog.Logger
}

func newSDRHandle(config conf.SourceConfig, receivers map[string]conf.ReceiverConfig) (*sdrHandle, error) {
	address := stringParam(config.KindSpecific, "address", "")
	if address == "" {
		return nil, errors.Newf("sdr source requires the demodulator address").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryConfiguration).
			Context("source", config.Name).
			Build()
	}

	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	h := &sdrHandle{
		config:   config,
		address:  address,
		receiver: stringParam(config.KindSpecific, "receiver", ""),
		lastRMSDB: math.Inf(-1),
		logger:   logger.With("component", "sdr_capture", "source", config.Name),
	}

	if rc, ok := receivers[h.receiver]; ok {
		h.squelchEnabled = rc.SquelchEnabled
		h.squelchThresholdDB = rc.SquelchThresholdDB
		h.squelchOpenMs = rc.SquelchOpenMs
		h.squelchCloseMs = rc.SquelchCloseMs
	} else {
		h.squelchEnabled = boolParam(config.KindSpecific, "squelch_enabled", false)
		h.squelchThresholdDB = -65.0
		h.squelchOpenMs = 150
		h.squelchCloseMs = 750
	}
	// With squelch disabled the gate is permanently open.
	h.squelchOpen = !h.squelchEnabled
	h.squelchLastChange = time.Now()

	return h, nil
}

// Open connects to the demodulator service.
func (h *sdrHandle) Open() error {
	conn, err := net.DialTimeout("tcp", h.address, 5*time.Second)
	if err != nil {
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryNetwork).
			Context("source", h.config.Name).
			Context("address", h.address).
			Build()
	}
	h.conn = conn

	h.mu.Lock()
	h.metadata = map[string]any{
		"address":              h.address,
		"receiver":             h.receiver,
		"squelch_enabled":      h.squelchEnabled,
		"squelch_threshold_db": h.squelchThresholdDB,
		"squelch_open_ms":      h.squelchOpenMs,
		"squelch_close_ms":     h.squelchCloseMs,
		"squelch_state":        h.squelchStateLocked(),
		"carrier_present":      h.squelchOpen || !h.squelchEnabled,
	}
	h.mu.Unlock()

	h.logger.Info("sdr feed connected", "address", h.address, "receiver", h.receiver)
	return nil
}

// squelchStateLocked names the current gate state. Caller must hold h.mu.
func (h *sdrHandle) squelchStateLocked() string {
	if !h.squelchEnabled {
		return "open"
	}
	if h.squelchOpen {
		return "open"
	}
	return "muted"
}

// ReadChunk reads one chunk from the feed and applies the squelch gate.
func (h *sdrHandle) ReadChunk() ([]float32, bool, error) {
	if h.conn == nil {
		return nil, false, errors.New(audiocore.ErrNotRunning).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryCapture).
			Context("source", h.config.Name).
			Build()
	}

	need := h.config.BufferFrames * h.config.Channels * 2
	raw := make([]byte, need)

	if err := h.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond)); err != nil {
		return nil, false, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryNetwork).
			Context("source", h.config.Name).
			Build()
	}

	read := 0
	for read < need {
		n, err := h.conn.Read(raw[read:])
		read += n
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// A short read is still activity; let the capture loop
				// come back around without sleeping.
				return nil, read > 0, nil
			}
			return nil, false, errors.New(err).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryNetwork).
				Context("source", h.config.Name).
				Context("address", h.address).
				Build()
		}
	}

	samples := make([]float32, h.config.BufferFrames*h.config.Channels)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:i*2+2]))) / 32768.0
	}

	return h.applySquelch(samples), true, nil
}

// applySquelch runs the carrier gate state machine over one chunk and
// zero-fills it while the gate is closed. The gate opens when RMS stays
// above threshold+margin for the open interval and closes when RMS stays
// below threshold for the close interval.
func (h *sdrHandle) applySquelch(samples []float32) []float32 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	rmsDB := 20 * math.Log10(math.Max(rms, 1e-10))

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastRMSDB = rmsDB

	if !h.squelchEnabled {
		h.updateSquelchMetadataLocked()
		return samples
	}

	now := time.Now()
	previous := h.squelchOpen
	openThreshold := h.squelchThresholdDB + squelchOpenMarginDB

	if h.squelchOpen {
		if rmsDB < h.squelchThresholdDB {
			if h.closeTimer.IsZero() {
				h.closeTimer = now
			} else if now.Sub(h.closeTimer) >= time.Duration(h.squelchCloseMs)*time.Millisecond {
				h.squelchOpen = false
				h.squelchLastChange = now
				h.closeTimer = time.Time{}
			}
		} else {
			h.closeTimer = time.Time{}
		}
	} else {
		if rmsDB >= openThreshold {
			if h.openTimer.IsZero() {
				h.openTimer = now
			} else if now.Sub(h.openTimer) >= time.Duration(h.squelchOpenMs)*time.Millisecond {
				h.squelchOpen = true
				h.squelchLastChange = now
				h.openTimer = time.Time{}
			}
		} else {
			h.openTimer = time.Time{}
		}
	}

	if previous != h.squelchOpen {
		h.logger.Info("carrier state changed",
			"carrier_present", h.squelchOpen,
			"rms_db", rmsDB,
			"threshold_db", h.squelchThresholdDB)
	}
	h.updateSquelchMetadataLocked()

	if !h.squelchOpen {
		// Muted chunks are still emitted, zero-filled, so downstream
		// consumers maintain their clock.
		for i := range samples {
			samples[i] = 0
		}
	}
	return samples
}

// updateSquelchMetadataLocked refreshes the squelch fields in the metadata
// bag. Caller must hold h.mu.
func (h *sdrHandle) updateSquelchMetadataLocked() {
	if h.metadata == nil {
		return
	}
	h.metadata["squelch_state"] = h.squelchStateLocked()
	h.metadata["squelch_state_since"] = h.squelchLastChange.Unix()
	h.metadata["carrier_present"] = h.squelchOpen || !h.squelchEnabled
	if math.IsInf(h.lastRMSDB, -1) {
		h.metadata["squelch_last_rms_db"] = nil
	} else {
		h.metadata["squelch_last_rms_db"] = h.lastRMSDB
	}
}

// Metadata returns a copy of the transport metadata bag.
func (h *sdrHandle) Metadata() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.metadata == nil {
		return nil
	}
	out := make(map[string]any, len(h.metadata))
	for k, v := range h.metadata {
		out[k] = v
	}
	return out
}

// Close disconnects from the demodulator. Idempotent.
func (h *sdrHandle) Close() error {
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	h.logger.Info("sdr feed disconnected")
	return err
}
