package analysis

import (
	"gonum.org/v1/gonum/floats"

	applog "beatscope/internal/log"
)

// BeatDetector flags sudden jumps in total spectral energy relative to
// an exponentially smoothed baseline. The baseline updates every cycle
// regardless of the detection outcome, so it tracks loudness trends
// slowly without being dominated by any single beat.
type BeatDetector struct {
	multiplier float64 // Energy ratio that flags a beat.
	smoothing  float64 // Weight of the previous baseline value.
	prevEnergy float64
}

// NewBeatDetector creates a detector triggering when the current energy
// exceeds multiplier times the smoothed baseline. smoothing is the
// weight kept on the previous baseline (0.9 keeps 90% of it per cycle).
func NewBeatDetector(multiplier, smoothing float64) *BeatDetector {
	applog.Debugf("Analysis: Initializing BeatDetector (Multiplier: %.2f, Smoothing: %.2f)",
		multiplier, smoothing)
	return &BeatDetector{
		multiplier: multiplier,
		smoothing:  smoothing,
	}
}

// Detect processes the full power spectrum for this cycle. The first
// cycle only seeds the baseline and can never trigger.
func (d *BeatDetector) Detect(power []float64) (bool, float64) {
	energy := floats.Sum(power)

	detected := false
	strength := 0.0
	if d.prevEnergy > 0 {
		ratio := energy / d.prevEnergy
		if ratio > d.multiplier {
			detected = true
			strength = ratio
		}
	}

	d.prevEnergy = d.smoothing*d.prevEnergy + (1-d.smoothing)*energy

	return detected, strength
}

// Reset clears the energy baseline.
func (d *BeatDetector) Reset() {
	d.prevEnergy = 0
}
