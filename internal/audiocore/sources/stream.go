package sources

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/alertstation/internal/audiocore"
	"github.com/tphakala/alertstation/internal/conf"
	"github.com/tphakala/alertstation/internal/errors"
	"github.com/tphakala/alertstation/internal/logging"
)

// streamReadWait bounds how long one ReadChunk waits for network bytes.
const streamReadWait = 100 * time.Millisecond

// streamHandle captures signed 16-bit little-endian PCM from an HTTP
// stream. ICY metadata blocks are parsed out-of-band on the reader
// goroutine and surfaced through Metadata; parsing never touches the audio
// path. A leading RIFF header, if present, is skipped.
type streamHandle struct {
	config conf.SourceConfig
	url    string

	client *http.Client

	mu       sync.Mutex
	cancel   context.CancelFunc
	readerWg sync.WaitGroup
	ring     *ringbuffer.RingBuffer
	readErr  error
	metadata map[string]any

	logger *slog.Logger
}

func newStreamHandle(config conf.SourceConfig) (*streamHandle, error) {
	url := stringParam(config.KindSpecific, "url", "")
	if url == "" {
		return nil, errors.Newf("stream source requires a url").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryConfiguration).
			Context("source", config.Name).
			Build()
	}

	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	return &streamHandle{
		config: config,
		url:    url,
		client: &http.Client{Timeout: 0}, // long-lived stream, no overall timeout
		logger: logger.With("component", "stream_capture", "source", config.Name, "url", url),
	}, nil
}

// Open connects to the stream and starts the reader goroutine.
func (h *streamHandle) Open() error {
	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		cancel()
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryNetwork).
			Context("source", h.config.Name).
			Context("url", h.url).
			Build()
	}
	req.Header.Set("Icy-MetaData", "1")

	resp, err := h.client.Do(req)
	if err != nil {
		cancel()
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryNetwork).
			Context("source", h.config.Name).
			Context("url", h.url).
			Build()
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return errors.Newf("stream returned status %d", resp.StatusCode).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryNetwork).
			Context("source", h.config.Name).
			Context("url", h.url).
			Build()
	}

	metaInt := 0
	if v := resp.Header.Get("icy-metaint"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			metaInt = parsed
		}
	}

	h.mu.Lock()
	h.cancel = cancel
	// One second of 16-bit PCM of headroom between network and decode.
	h.ring = ringbuffer.New(h.config.SampleRate * h.config.Channels * 2)
	h.readErr = nil
	h.metadata = map[string]any{
		"url":          h.url,
		"content_type": resp.Header.Get("Content-Type"),
		"icy_name":     resp.Header.Get("icy-name"),
		"icy_metaint":  metaInt,
	}
	h.mu.Unlock()

	h.readerWg.Add(1)
	go h.readLoop(resp.Body, metaInt)

	h.logger.Info("stream connected",
		"content_type", resp.Header.Get("Content-Type"),
		"icy_metaint", metaInt)
	return nil
}

// readLoop moves stream bytes into the ring buffer, stripping interleaved
// ICY metadata blocks.
func (h *streamHandle) readLoop(body io.ReadCloser, metaInt int) {
	defer h.readerWg.Done()
	defer func() {
		if err := body.Close(); err != nil {
			h.logger.Debug("error closing stream body", "error", err)
		}
	}()

	reader := io.Reader(body)
	untilMeta := metaInt
	buf := make([]byte, 4096)
	first := true

	for {
		limit := len(buf)
		if metaInt > 0 && untilMeta < limit {
			limit = untilMeta
		}

		n, err := reader.Read(buf[:limit])
		if n > 0 {
			payload := buf[:n]
			if first {
				payload = stripRIFFHeader(payload)
				first = false
			}
			h.mu.Lock()
			ring := h.ring
			h.mu.Unlock()
			if ring == nil {
				return
			}
			// Drop on overflow; the network must never block the decode
			// side and vice versa.
			_, _ = ring.Write(payload)
			if metaInt > 0 {
				untilMeta -= n
			}
		}
		if err != nil {
			h.setReadErr(err)
			return
		}

		if metaInt > 0 && untilMeta == 0 {
			if err := h.readMetadataBlock(reader); err != nil {
				h.setReadErr(err)
				return
			}
			untilMeta = metaInt
		}
	}
}

// readMetadataBlock consumes one ICY metadata block and deposits parsed
// fields into the metadata bag.
func (h *streamHandle) readMetadataBlock(reader io.Reader) error {
	var lengthByte [1]byte
	if _, err := io.ReadFull(reader, lengthByte[:]); err != nil {
		return err
	}
	length := int(lengthByte[0]) * 16
	if length == 0 {
		return nil
	}

	block := make([]byte, length)
	if _, err := io.ReadFull(reader, block); err != nil {
		return err
	}

	text := string(bytes.TrimRight(block, "\x00"))
	if title, ok := parseStreamTitle(text); ok {
		h.mu.Lock()
		if h.metadata != nil {
			h.metadata["stream_title"] = title
			h.metadata["stream_title_at"] = time.Now().Unix()
		}
		h.mu.Unlock()
		h.logger.Debug("stream metadata", "title", title)
	}
	return nil
}

// parseStreamTitle extracts the StreamTitle field from an ICY metadata
// string like "StreamTitle='...';StreamUrl='...';".
func parseStreamTitle(text string) (string, bool) {
	const key = "StreamTitle='"
	start := strings.Index(text, key)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(key):]
	end := strings.Index(rest, "';")
	if end < 0 {
		end = strings.LastIndex(rest, "'")
		if end < 0 {
			return "", false
		}
	}
	return rest[:end], true
}

// stripRIFFHeader drops a standard 44-byte WAV header from the first
// payload so raw PCM follows.
func stripRIFFHeader(payload []byte) []byte {
	if len(payload) >= 44 && bytes.HasPrefix(payload, []byte("RIFF")) {
		return payload[44:]
	}
	return payload
}

func (h *streamHandle) setReadErr(err error) {
	h.mu.Lock()
	if h.readErr == nil {
		h.readErr = err
	}
	h.mu.Unlock()
}

// ReadChunk assembles one chunk of float32 samples from buffered stream
// bytes.
func (h *streamHandle) ReadChunk() ([]float32, bool, error) {
	need := h.config.BufferFrames * h.config.Channels * 2 // s16le bytes

	deadline := time.Now().Add(streamReadWait)
	for {
		h.mu.Lock()
		ring := h.ring
		readErr := h.readErr
		h.mu.Unlock()

		if ring == nil {
			return nil, false, errors.New(audiocore.ErrNotRunning).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryCapture).
				Context("source", h.config.Name).
				Build()
		}

		if ring.Length() >= need {
			raw := make([]byte, need)
			if _, err := io.ReadFull(ring, raw); err != nil {
				return nil, false, errors.New(err).
					Component(audiocore.ComponentAudioCore).
					Category(errors.CategoryNetwork).
					Context("source", h.config.Name).
					Build()
			}
			samples := make([]float32, h.config.BufferFrames*h.config.Channels)
			for i := range samples {
				samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:i*2+2]))) / 32768.0
			}
			return samples, true, nil
		}

		if readErr != nil {
			return nil, false, errors.New(readErr).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryNetwork).
				Context("source", h.config.Name).
				Context("url", h.url).
				Build()
		}

		if time.Now().After(deadline) {
			// Bytes arrived but not a full chunk yet: report activity so
			// the capture loop keeps polling without its idle sleep.
			return nil, ring.Length() > 0, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Metadata returns a copy of the transport metadata bag.
func (h *streamHandle) Metadata() map[string]any {
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

// Close cancels the connection and joins the reader goroutine. Idempotent.
func (h *streamHandle) Close() error {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.ring = nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	h.readerWg.Wait()
	h.logger.Info("stream disconnected")
	return nil
}
