package engine

import (
	"sync"
	"sync/atomic"

	"beatscope/internal/analysis"
)

// Subscriber receives each published feature set. Callbacks run on the
// analysis goroutine and must return quickly.
type Subscriber func(analysis.FeatureSet)

// Publisher fans analyzed features out to subscribers and keeps the
// most recent set for pull-style consumers. Continuous features are
// exponentially smoothed before delivery; event flags and timestamps
// pass through raw.
type Publisher struct {
	mu          sync.Mutex
	subscribers []Subscriber

	smoothing float64
	prev      analysis.FeatureSet
	hasPrev   bool

	latest atomic.Pointer[analysis.FeatureSet]
}

// NewPublisher creates a publisher with the given smoothing factor.
// smoothing is the weight of the new value (0.7 means 70% new, 30%
// previous); 1.0 disables smoothing.
func NewPublisher(smoothing float64) *Publisher {
	return &Publisher{smoothing: smoothing}
}

// Subscribe registers a callback. Subscribers are invoked in
// registration order. Not safe to call concurrently with Publish
// unless the engine is stopped.
func (p *Publisher) Subscribe(s Subscriber) {
	p.mu.Lock()
	p.subscribers = append(p.subscribers, s)
	p.mu.Unlock()
}

// Publish smooths the feature set, stores it as latest, and delivers it
// to every subscriber. Called from the analysis loop only.
func (p *Publisher) Publish(fs analysis.FeatureSet) {
	if p.hasPrev {
		a := p.smoothing
		b := 1 - a
		fs.RMS = a*fs.RMS + b*p.prev.RMS
		fs.PeakAmplitude = a*fs.PeakAmplitude + b*p.prev.PeakAmplitude
		fs.ZeroCrossingRate = a*fs.ZeroCrossingRate + b*p.prev.ZeroCrossingRate
		fs.SpectralCentroid = a*fs.SpectralCentroid + b*p.prev.SpectralCentroid
		fs.SpectralRolloff = a*fs.SpectralRolloff + b*p.prev.SpectralRolloff
		fs.SpectralBandwidth = a*fs.SpectralBandwidth + b*p.prev.SpectralBandwidth
		fs.PeakFrequency = a*fs.PeakFrequency + b*p.prev.PeakFrequency
		fs.NormalizedRMS = a*fs.NormalizedRMS + b*p.prev.NormalizedRMS
		fs.NormalizedCentroid = a*fs.NormalizedCentroid + b*p.prev.NormalizedCentroid
	}
	p.prev = fs
	p.hasPrev = true

	stored := fs
	p.latest.Store(&stored)

	p.mu.Lock()
	subs := p.subscribers
	p.mu.Unlock()
	for _, s := range subs {
		s(fs)
	}
}

// Latest returns the most recently published feature set, if any.
func (p *Publisher) Latest() (analysis.FeatureSet, bool) {
	fs := p.latest.Load()
	if fs == nil {
		return analysis.FeatureSet{}, false
	}
	return *fs, true
}

// Reset clears the smoothing state. The latest snapshot is kept so
// pull consumers still see the last features before a restart.
func (p *Publisher) Reset() {
	p.prev = analysis.FeatureSet{}
	p.hasPrev = false
}
