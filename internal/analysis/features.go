/*
Package analysis implements the per-cycle feature extraction pipeline:
a sliding Hann-weighted sample window, FFT-based spectral features,
spectral-flux onset detection with an adaptive threshold, and
energy-ratio beat detection.

Everything in this package is single-threaded by design: each component
is owned by one analysis loop and holds pre-allocated workspaces so a
steady-state cycle performs no allocations.
*/
package analysis

import "time"

// FeatureSet is one cycle's worth of extracted features. It is created
// once per analysis cycle and never mutated after publication.
type FeatureSet struct {
	Timestamp time.Time `json:"timestamp"`

	// Time-domain features.
	RMS              float64 `json:"rms"`
	PeakAmplitude    float64 `json:"peak_amplitude"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`

	// Spectral features over the configured frequency band.
	SpectralCentroid  float64 `json:"spectral_centroid"`
	SpectralRolloff   float64 `json:"spectral_rolloff"`
	SpectralBandwidth float64 `json:"spectral_bandwidth"`
	PeakFrequency     float64 `json:"peak_frequency"`

	// Event detectors.
	OnsetDetected bool    `json:"onset_detected"`
	OnsetStrength float64 `json:"onset_strength"`
	BeatDetected  bool    `json:"beat_detected"`
	BeatStrength  float64 `json:"beat_strength"`

	// Unit-range variants for visualization consumers.
	NormalizedRMS      float64 `json:"normalized_rms"`
	NormalizedCentroid float64 `json:"normalized_centroid"`
}
