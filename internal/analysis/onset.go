package analysis

import (
	"gonum.org/v1/gonum/stat"

	applog "beatscope/internal/log"
)

// OnsetDetector flags onsets from half-wave-rectified spectral flux:
// the summed frame-to-frame increase in magnitude across all bins.
// Energy decreases are ignored since they are not perceptually onsets.
//
// The detection threshold adapts to the recent flux history
// (mean + sensitivity*std). A fixed threshold misfires across loudness
// regimes; normalizing against the local energy profile keeps the
// detector equally sensitive for quiet and loud material.
type OnsetDetector struct {
	sensitivity float64

	history []float64 // Rolling flux ring; order is irrelevant to mean/std.
	pos     int
	filled  int

	prev    []float64 // Magnitude spectrum retained for one cycle.
	hasPrev bool
}

// NewOnsetDetector creates a detector for magnitude spectra of the
// given bin count, with a flux history of historyLen values.
func NewOnsetDetector(bins, historyLen int, sensitivity float64) *OnsetDetector {
	applog.Debugf("Analysis: Initializing OnsetDetector (Bins: %d, History: %d, Sensitivity: %.2f)",
		bins, historyLen, sensitivity)
	return &OnsetDetector{
		sensitivity: sensitivity,
		history:     make([]float64, historyLen),
		prev:        make([]float64, bins),
	}
}

// Detect processes the magnitude spectrum for this cycle and reports
// whether an onset occurred and its strength. The very first cycle only
// seeds the previous spectrum. Detection also requires more than 3
// history entries and a non-zero flux deviation, so constant input can
// never trigger.
func (d *OnsetDetector) Detect(magnitude []float64) (bool, float64) {
	if len(magnitude) != len(d.prev) {
		return false, 0
	}
	if !d.hasPrev {
		copy(d.prev, magnitude)
		d.hasPrev = true
		return false, 0
	}

	var flux float64
	for i, m := range magnitude {
		if diff := m - d.prev[i]; diff > 0 {
			flux += diff
		}
	}
	copy(d.prev, magnitude)

	// Push into the ring, evicting the oldest value once full.
	d.history[d.pos] = flux
	d.pos = (d.pos + 1) % len(d.history)
	if d.filled < len(d.history) {
		d.filled++
	}

	if d.filled <= 3 {
		return false, 0
	}

	mean, std := stat.MeanStdDev(d.history[:d.filled], nil)
	if std <= 0 {
		return false, 0
	}

	threshold := mean + d.sensitivity*std
	if flux > threshold {
		return true, (flux - threshold) / std
	}
	return false, 0
}

// Reset clears the flux history and the retained spectrum.
func (d *OnsetDetector) Reset() {
	d.pos = 0
	d.filled = 0
	d.hasPrev = false
}
