// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"beatscope/pkg/bitint"
)

// SpectralAnalyzer computes a magnitude/power spectrum from the current
// analysis window and derives the spectral features from it. All
// buffers are pre-allocated; Analyze performs no allocations.
//
// Band-limited features (centroid, rolloff, bandwidth, peak frequency)
// are computed over the configured [freqMin, freqMax] range only. The
// raw magnitude and power spectra stay unmasked so the onset and beat
// detectors see the full spectrum.
type SpectralAnalyzer struct {
	fft        *fourier.FFT
	windowLen  int
	sampleRate float64

	freqMin, freqMax float64
	rolloffFraction  float64

	// Workspace, sized windowLen/2+1.
	fftOutput []complex128
	magnitude []float64
	power     []float64
	freqs     []float64

	// Inclusive bin range covered by [freqMin, freqMax]; loBin > hiBin
	// means no bin falls inside the band.
	loBin, hiBin int
}

// NewSpectralAnalyzer creates an analyzer for windows of windowLen
// samples at the given sample rate. windowLen must be a power of 2.
func NewSpectralAnalyzer(windowLen int, sampleRate, freqMin, freqMax, rolloffFraction float64) (*SpectralAnalyzer, error) {
	if !bitint.IsPowerOfTwo(windowLen) {
		return nil, fmt.Errorf("window length must be a power of 2, got %d", windowLen)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if freqMax <= freqMin {
		return nil, fmt.Errorf("invalid frequency range [%.1f, %.1f]", freqMin, freqMax)
	}
	if rolloffFraction <= 0 || rolloffFraction > 1 {
		return nil, fmt.Errorf("rolloff fraction must be in (0, 1], got %f", rolloffFraction)
	}

	bins := windowLen/2 + 1
	freqs := make([]float64, bins)
	binWidth := sampleRate / float64(windowLen)
	for i := range freqs {
		freqs[i] = float64(i) * binWidth
	}

	loBin := bins
	hiBin := -1
	for i, f := range freqs {
		if f >= freqMin && f <= freqMax {
			if i < loBin {
				loBin = i
			}
			hiBin = i
		}
	}

	return &SpectralAnalyzer{
		fft:             fourier.NewFFT(windowLen),
		windowLen:       windowLen,
		sampleRate:      sampleRate,
		freqMin:         freqMin,
		freqMax:         freqMax,
		rolloffFraction: rolloffFraction,
		fftOutput:       make([]complex128, bins),
		magnitude:       make([]float64, bins),
		power:           make([]float64, bins),
		freqs:           freqs,
		loBin:           loBin,
		hiBin:           hiBin,
	}, nil
}

// Analyze extracts the time-domain and spectral features from the given
// window contents. The samples slice must have the configured window
// length. The returned FeatureSet has its detector and timestamp fields
// unset; the caller fills those in.
func (s *SpectralAnalyzer) Analyze(samples []float64) FeatureSet {
	var fs FeatureSet
	if len(samples) != s.windowLen {
		return fs
	}

	// Time-domain features.
	var sumSquare float64
	var peak float64
	crossings := 0
	prevSign := sign(samples[0])
	for i, v := range samples {
		sumSquare += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
		if i > 0 {
			if sg := sign(v); sg != prevSign {
				crossings++
				prevSign = sg
			}
		}
	}
	fs.RMS = math.Sqrt(sumSquare / float64(len(samples)))
	fs.PeakAmplitude = peak
	fs.ZeroCrossingRate = float64(crossings) / float64(len(samples))

	// Magnitude and power spectra.
	s.fft.Coefficients(s.fftOutput, samples)
	for i, c := range s.fftOutput {
		m := cmplx.Abs(c)
		s.magnitude[i] = m
		s.power[i] = m * m
	}

	// Band-limited spectral features. An empty mask leaves them zeroed.
	if s.loBin <= s.hiBin {
		bandPower := s.power[s.loBin : s.hiBin+1]
		bandFreqs := s.freqs[s.loBin : s.hiBin+1]
		totalPower := floats.Sum(bandPower)

		if totalPower > 0 {
			var weighted float64
			for i, p := range bandPower {
				weighted += bandFreqs[i] * p
			}
			fs.SpectralCentroid = weighted / totalPower

			// Rolloff: lowest bin where cumulative power reaches the
			// configured fraction of the band total. The fallback to the
			// top bin guards against accumulated rounding.
			target := s.rolloffFraction * totalPower
			fs.SpectralRolloff = bandFreqs[len(bandFreqs)-1]
			cum := 0.0
			for i, p := range bandPower {
				cum += p
				if cum >= target {
					fs.SpectralRolloff = bandFreqs[i]
					break
				}
			}

			if fs.SpectralCentroid > 0 {
				var spread float64
				for i, p := range bandPower {
					d := bandFreqs[i] - fs.SpectralCentroid
					spread += d * d * p
				}
				fs.SpectralBandwidth = math.Sqrt(spread / totalPower)
			}

			peakBin := 0
			for i, p := range bandPower {
				if p > bandPower[peakBin] {
					peakBin = i
				}
			}
			fs.PeakFrequency = bandFreqs[peakBin]
		}
	}

	fs.NormalizedRMS = clip(fs.RMS*10, 0, 1)
	fs.NormalizedCentroid = clip((fs.SpectralCentroid-s.freqMin)/(s.freqMax-s.freqMin), 0, 1)

	return fs
}

// Magnitude returns the full unmasked magnitude spectrum from the last
// Analyze call. The slice is workspace-owned and valid until the next
// call; callers that retain it across cycles must copy.
func (s *SpectralAnalyzer) Magnitude() []float64 {
	return s.magnitude
}

// Power returns the full unmasked power spectrum from the last Analyze
// call, with the same ownership rules as Magnitude.
func (s *SpectralAnalyzer) Power() []float64 {
	return s.power
}

// Bins returns the number of spectrum bins (windowLen/2 + 1).
func (s *SpectralAnalyzer) Bins() int {
	return len(s.magnitude)
}

// FreqForBin returns the center frequency (Hz) for a bin index, or 0
// for an index out of range.
func (s *SpectralAnalyzer) FreqForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= len(s.freqs) {
		return 0
	}
	return s.freqs[binIndex]
}

// BinWidth returns the frequency resolution in Hz.
func (s *SpectralAnalyzer) BinWidth() float64 {
	return s.sampleRate / float64(s.windowLen)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
