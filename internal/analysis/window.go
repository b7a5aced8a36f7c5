// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"

	"beatscope/pkg/bitint"
)

// Window is a fixed-length sliding buffer of the most recent samples.
// Each incoming frame is Hann-weighted once at insertion, then the
// buffer is shifted left by one frame length and the weighted frame is
// written into the trailing slots. This is a simple sliding window, not
// overlap-add: a sample is windowed a single time and contributes only
// while it stays inside the buffer. Downstream feature behavior was
// tuned against exactly this update, so it must not be "fixed" into a
// true streaming STFT.
//
// The window is exclusively owned by the analysis loop; it is not safe
// for concurrent use.
type Window struct {
	samples  []float64
	coeffs   []float64 // Hann coefficients, one per frame sample.
	frameLen int
}

// NewWindow creates a sliding window of windowLen samples fed by frames
// of frameLen samples. Both lengths must be powers of 2 with
// windowLen >= frameLen.
func NewWindow(windowLen, frameLen int) (*Window, error) {
	if !bitint.IsPowerOfTwo(windowLen) || !bitint.IsPowerOfTwo(frameLen) {
		return nil, fmt.Errorf("window and frame lengths must be powers of 2, got %d/%d", windowLen, frameLen)
	}
	if windowLen < frameLen {
		return nil, fmt.Errorf("window length %d is shorter than frame length %d", windowLen, frameLen)
	}

	coeffs := make([]float64, frameLen)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	window.Hann(coeffs)

	return &Window{
		samples:  make([]float64, windowLen),
		coeffs:   coeffs,
		frameLen: frameLen,
	}, nil
}

// Push weights frame with the Hann coefficients and splices it into the
// trailing slots of the window. A frame of the wrong length is a
// transient error; the window is left untouched.
func (w *Window) Push(frame []float32) error {
	if len(frame) != w.frameLen {
		return fmt.Errorf("frame length %d does not match expected %d", len(frame), w.frameLen)
	}

	copy(w.samples, w.samples[w.frameLen:])

	tail := w.samples[len(w.samples)-w.frameLen:]
	for i, v := range frame {
		tail[i] = float64(v) * w.coeffs[i]
	}
	return nil
}

// Samples returns the window contents, newest samples last. The slice
// is owned by the window and valid until the next Push.
func (w *Window) Samples() []float64 {
	return w.samples
}

// Len returns the window length in samples.
func (w *Window) Len() int {
	return len(w.samples)
}

// Silent reports whether the peak absolute amplitude in the window is
// below floor. Silent windows skip feature extraction entirely.
func (w *Window) Silent(floor float64) bool {
	for _, v := range w.samples {
		if math.Abs(v) >= floor {
			return false
		}
	}
	return true
}

// Reset zeroes the window contents.
func (w *Window) Reset() {
	for i := range w.samples {
		w.samples[i] = 0
	}
}
