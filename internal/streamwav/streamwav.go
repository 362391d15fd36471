// Package streamwav encodes live float32 PCM as a streamable WAV byte
// stream for HTTP consumers. The RIFF size fields are set to 0xFFFFFFFF
// to indicate an unbounded stream.
package streamwav

import (
	"encoding/binary"
	"io"
	"math"
)

// headerSize is the fixed RIFF/WAVE header length for PCM format tag 1.
const headerSize = 44

// streamingSize marks the RIFF and data chunks as unbounded.
const streamingSize = 0xFFFFFFFF

// Writer encodes 16-bit little-endian PCM frames behind a streaming WAV
// header.
type Writer struct {
	w          io.Writer
	sampleRate int
	channels   int
	headerSent bool
}

// NewWriter creates a streaming WAV writer for the given format.
func NewWriter(w io.Writer, sampleRate, channels int) *Writer {
	return &Writer{
		w:          w,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Header returns the 44-byte streaming WAV header for the writer's format.
func Header(sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	h := make([]byte, headerSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], streamingSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM format tag
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], streamingSize)
	return h
}

// WriteSamples converts float32 samples to 16-bit PCM and writes them,
// emitting the header first on the initial call. Samples are clipped, not
// wrapped, on overflow.
func (sw *Writer) WriteSamples(samples []float32) error {
	if !sw.headerSent {
		if _, err := sw.w.Write(Header(sw.sampleRate, sw.channels)); err != nil {
			return err
		}
		sw.headerSent = true
	}

	buf := EncodePCM16(samples)
	_, err := sw.w.Write(buf)
	return err
}

// EncodePCM16 converts float32 samples in [-1, 1] to little-endian 16-bit
// PCM bytes.
func EncodePCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		sample := int16(math.Round(v * 32767))
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(sample))
	}
	return buf
}
