//
// Package synth generates deterministic test signals for the analysis
// pipeline: sine tones, seeded white noise and silence, as mono float32
// frames in [-1, 1]. It also provides small spectrum helpers shared by
// tests across packages.
package synth

import (
	"math"
	"math/rand"
)

// Sine returns n samples of a sine tone at the given frequency and
// amplitude, starting at the given sample offset so that consecutive
// frames remain phase-continuous.
func Sine(n int, sampleRate, freq, amplitude float64, offset int) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		tm := float64(offset+i) / sampleRate
		buf[i] = float32(amplitude * math.Sin(2*math.Pi*freq*tm))
	}
	return buf
}

// Noise returns n samples of uniform white noise at the given amplitude,
// drawn from a seeded source so tests are repeatable.
func Noise(n int, amplitude float64, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = float32(amplitude * (2*rng.Float64() - 1))
	}
	return buf
}

// Silence returns n zero samples.
func Silence(n int) []float32 {
	return make([]float32, n)
}

// ToFloat64 widens a float32 frame, allocating a new slice.
func ToFloat64(frame []float32) []float64 {
	out := make([]float64, len(frame))
	for i, v := range frame {
		out[i] = float64(v)
	}
	return out
}

// FindPeakBin returns the index of the largest value in magnitudes
// within [startBin, endBin], clamped to the slice bounds.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > magnitudes[peakBin] {
			peakBin = bin
		}
	}
	return peakBin
}
