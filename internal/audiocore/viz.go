package audiocore

import (
	"math"
	"sync"
)

// waveformBuffer keeps the most recent samples for oscilloscope-style
// visualisation snapshots.
type waveformBuffer struct {
	mu     sync.Mutex
	buffer []float32
}

func newWaveformBuffer(size int) *waveformBuffer {
	return &waveformBuffer{buffer: make([]float32, size)}
}

// update shifts new samples into the buffer. Chunks larger than the buffer
// are decimated so the snapshot still spans the whole chunk.
func (w *waveformBuffer) update(samples []float32) {
	if len(samples) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	size := len(w.buffer)
	if len(samples) >= size {
		step := len(samples) / size
		for i := 0; i < size; i++ {
			w.buffer[i] = samples[i*step]
		}
		return
	}

	shift := len(samples)
	copy(w.buffer, w.buffer[shift:])
	copy(w.buffer[size-shift:], samples)
}

// snapshot returns a consistent copy of the buffer.
func (w *waveformBuffer) snapshot() []float32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float32, len(w.buffer))
	copy(out, w.buffer)
	return out
}

// spectrogramBuffer keeps a rolling history of normalised FFT magnitude
// frames for waterfall visualisation.
type spectrogramBuffer struct {
	mu      sync.Mutex
	fftSize int
	history int
	frames  [][]float32
	window  []float64
}

func newSpectrogramBuffer(fftSize, history int) *spectrogramBuffer {
	frames := make([][]float32, history)
	for i := range frames {
		frames[i] = make([]float32, fftSize/2)
	}
	return &spectrogramBuffer{
		fftSize: fftSize,
		history: history,
		frames:  frames,
		window:  hammingWindow(fftSize),
	}
}

// update computes one FFT frame from the tail of the chunk and appends it.
// Chunks shorter than the FFT window are skipped.
func (s *spectrogramBuffer) update(samples []float32) {
	if len(samples) < s.fftSize {
		return
	}

	tail := samples[len(samples)-s.fftSize:]

	re := make([]float64, s.fftSize)
	im := make([]float64, s.fftSize)
	for i := 0; i < s.fftSize; i++ {
		re[i] = float64(tail[i]) * s.window[i]
	}

	fft(re, im)

	frame := make([]float32, s.fftSize/2)
	for i := range frame {
		magnitude := math.Max(math.Hypot(re[i], im[i]), dbFloor)
		db := 20 * math.Log10(magnitude)
		// Normalise -120..0 dB into 0..1 for display.
		norm := (db + 120) / 120
		frame[i] = float32(math.Max(0, math.Min(1, norm)))
	}

	s.mu.Lock()
	copy(s.frames, s.frames[1:])
	s.frames[s.history-1] = frame
	s.mu.Unlock()
}

// snapshot returns a consistent copy of all frames.
func (s *spectrogramBuffer) snapshot() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]float32, s.history)
	for i, frame := range s.frames {
		row := make([]float32, len(frame))
		copy(row, frame)
		out[i] = row
	}
	return out
}

// hammingWindow returns the Hamming window coefficients for the given size.
func hammingWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}
	return w
}

// fft computes an in-place iterative radix-2 FFT. Length must be a power
// of two.
func fft(re, im []float64) {
	n := len(re)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wRe, wIm := math.Cos(angle), math.Sin(angle)
		for start := 0; start < n; start += length {
			curRe, curIm := 1.0, 0.0
			half := length / 2
			for k := 0; k < half; k++ {
				evenRe, evenIm := re[start+k], im[start+k]
				oddRe := re[start+k+half]*curRe - im[start+k+half]*curIm
				oddIm := re[start+k+half]*curIm + im[start+k+half]*curRe

				re[start+k] = evenRe + oddRe
				im[start+k] = evenIm + oddIm
				re[start+k+half] = evenRe - oddRe
				im[start+k+half] = evenIm - oddIm

				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
}
