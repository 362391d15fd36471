package sources

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/alertstation/internal/audiocore"
	"github.com/tphakala/alertstation/internal/conf"
	"github.com/tphakala/alertstation/internal/errors"
	"github.com/tphakala/alertstation/internal/logging"
)

type deviceBackend int

const (
	backendALSA deviceBackend = iota
	backendPulse
)

// deviceReadWait bounds how long one ReadChunk waits for the capture
// callback to accumulate a full chunk.
const deviceReadWait = 100 * time.Millisecond

// deviceHandle captures from a soundcard through malgo. The miniaudio
// callback deposits raw f32 frames into a locked accumulator; ReadChunk
// assembles fixed-size chunks from it.
type deviceHandle struct {
	config  conf.SourceConfig
	backend deviceBackend
	device  string

	ctx *malgo.AllocatedContext
	dev *malgo.Device

	mu      sync.Mutex
	cond    *sync.Cond
	pending []float32
	opened  bool

	logger *slog.Logger
}

func newDeviceHandle(config conf.SourceConfig, backend deviceBackend) (*deviceHandle, error) {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	h := &deviceHandle{
		config:  config,
		backend: backend,
		device:  stringParam(config.KindSpecific, "device", "default"),
		logger:  logger.With("component", "device_capture", "source", config.Name),
	}
	h.cond = sync.NewCond(&h.mu)
	return h, nil
}

func (h *deviceHandle) malgoBackend() malgo.Backend {
	if h.backend == backendPulse {
		return malgo.BackendPulseaudio
	}
	return malgo.BackendAlsa
}

// Open initialises the malgo context and starts the capture device.
func (h *deviceHandle) Open() error {
	ctx, err := malgo.InitContext([]malgo.Backend{h.malgoBackend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryCapture).
			Context("source", h.config.Name).
			Context("operation", "init_context").
			Build()
	}
	h.ctx = ctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(h.config.Channels)
	deviceConfig.SampleRate = uint32(h.config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if info, err := h.findDevice(); err == nil && info != nil {
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: h.onAudioData,
	}

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		h.ctx = nil
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryCapture).
			Context("source", h.config.Name).
			Context("device", h.device).
			Context("operation", "init_device").
			Build()
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = ctx.Uninit()
		h.ctx = nil
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryCapture).
			Context("source", h.config.Name).
			Context("operation", "start_device").
			Build()
	}
	h.dev = dev

	h.mu.Lock()
	h.opened = true
	h.pending = h.pending[:0]
	h.mu.Unlock()

	h.logger.Info("capture device opened", "device", h.device)
	return nil
}

// findDevice resolves the configured device name, preferring the system
// default when unset.
func (h *deviceHandle) findDevice() (*malgo.DeviceInfo, error) {
	devices, err := h.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}
	if h.device == "" || h.device == "default" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
		return nil, nil
	}
	for i := range devices {
		if devices[i].Name() == h.device {
			return &devices[i], nil
		}
	}
	return nil, nil
}

// onAudioData is invoked by miniaudio with raw f32 sample bytes.
func (h *deviceHandle) onAudioData(pOutput, pInput []byte, frameCount uint32) {
	samples := make([]float32, len(pInput)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(pInput[i*4 : i*4+4]))
	}

	h.mu.Lock()
	h.pending = append(h.pending, samples...)
	// Bound the accumulator to roughly one second of audio.
	limit := h.config.SampleRate * h.config.Channels
	if len(h.pending) > limit {
		h.pending = h.pending[len(h.pending)-limit:]
	}
	h.cond.Signal()
	h.mu.Unlock()
}

// ReadChunk waits briefly for one full chunk of samples from the callback.
func (h *deviceHandle) ReadChunk() ([]float32, bool, error) {
	need := h.config.BufferFrames * h.config.Channels
	deadline := time.Now().Add(deviceReadWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.opened {
		return nil, false, errors.New(audiocore.ErrNotRunning).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryCapture).
			Context("source", h.config.Name).
			Build()
	}

	for len(h.pending) < need {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			// Partial data counts as activity so the adapter loops
			// without its idle sleep.
			return nil, len(h.pending) > 0, nil
		}
		wake := time.AfterFunc(remaining, func() {
			h.mu.Lock()
			h.cond.Broadcast()
			h.mu.Unlock()
		})
		h.cond.Wait()
		wake.Stop()
		if !h.opened {
			return nil, false, errors.New(audiocore.ErrNotRunning).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryCapture).
				Context("source", h.config.Name).
				Build()
		}
	}

	chunk := make([]float32, need)
	copy(chunk, h.pending[:need])
	h.pending = h.pending[need:]
	return chunk, true, nil
}

// Metadata reports the capture backend and device.
func (h *deviceHandle) Metadata() map[string]any {
	backend := "alsa"
	if h.backend == backendPulse {
		backend = "pulse"
	}
	return map[string]any{
		"backend": backend,
		"device":  h.device,
	}
}

// Close stops and releases the capture device. Idempotent.
func (h *deviceHandle) Close() error {
	h.mu.Lock()
	wasOpen := h.opened
	h.opened = false
	h.pending = nil
	h.cond.Broadcast()
	h.mu.Unlock()

	if !wasOpen {
		return nil
	}

	if h.dev != nil {
		_ = h.dev.Stop()
		h.dev.Uninit()
		h.dev = nil
	}
	if h.ctx != nil {
		_ = h.ctx.Uninit()
		h.ctx = nil
	}

	h.logger.Info("capture device closed", "device", h.device)
	return nil
}
