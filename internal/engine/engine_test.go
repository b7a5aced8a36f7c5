package engine

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"beatscope/internal/analysis"
	"beatscope/internal/audio"
	"beatscope/internal/config"
	"beatscope/pkg/synth"
)

const (
	e2eSampleRate = 44100.0
	e2eFrameLen   = 1024
	e2eWindowLen  = 2048

	// Ten full cycles per frame, so every frame of this tone is
	// identical and the steady tail produces zero spectral flux.
	e2eToneFreq = 10 * e2eSampleRate / e2eFrameLen
)

func e2eConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Audio.SampleRate = e2eSampleRate
	cfg.Audio.FrameLength = e2eFrameLen
	cfg.Audio.WindowLength = e2eWindowLen
	// Large enough that no frame is ever dropped, which keeps the
	// cycle sequence fully deterministic.
	cfg.Analysis.QueueCapacity = 256
	cfg.Analysis.PollTimeout = config.Duration(20 * time.Millisecond)
	cfg.Analysis.OnsetSensitivity = 2.5
	return cfg
}

// stubSource delivers a fixed frame sequence synchronously, then
// reports a clean end of stream.
type stubSource struct {
	frames [][]float32
	errs   chan error
}

func newStubSource(frames [][]float32) *stubSource {
	return &stubSource{frames: frames, errs: make(chan error, 1)}
}

func (s *stubSource) Start(deliver func([]float32)) error {
	for _, f := range s.frames {
		deliver(f)
	}
	s.errs <- audio.ErrStreamEnded
	return nil
}

func (s *stubSource) Stop() error          { return nil }
func (s *stubSource) Errors() <-chan error { return s.errs }

// collector gathers published feature sets in order.
type collector struct {
	mu  sync.Mutex
	fss []analysis.FeatureSet
}

func (c *collector) collect(fs analysis.FeatureSet) {
	c.mu.Lock()
	c.fss = append(c.fss, fs)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fss)
}

func (c *collector) snapshot() []analysis.FeatureSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]analysis.FeatureSet, len(c.fss))
	copy(out, c.fss)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// TestEngineEndToEnd plays silence, a quiet tone, a loud noise burst,
// and a steady tone through the full chain and checks the published
// feature stream: the silent lead-in publishes nothing, the burst
// registers as an onset and a beat, and the steady tail settles with
// no further events and a centroid at the tone frequency.
func TestEngineEndToEnd(t *testing.T) {
	const (
		silentFrames = 20
		quietFrames  = 50
		burstFrames  = 2
		toneFrames   = 90
	)
	totalFrames := silentFrames + quietFrames + burstFrames + toneFrames
	publishable := totalFrames - silentFrames
	burstAt := quietFrames // index in the published stream

	var frames [][]float32
	for i := 0; i < silentFrames; i++ {
		frames = append(frames, synth.Silence(e2eFrameLen))
	}
	// 170 Hz is not frame-periodic, so the quiet phase produces small
	// but non-zero flux variance for the onset threshold to work with.
	for i := 0; i < quietFrames; i++ {
		frames = append(frames, synth.Sine(e2eFrameLen, e2eSampleRate, 170, 0.01, i*e2eFrameLen))
	}
	for i := 0; i < burstFrames; i++ {
		frames = append(frames, synth.Noise(e2eFrameLen, 0.9, int64(42+i)))
	}
	for i := 0; i < toneFrames; i++ {
		frames = append(frames, synth.Sine(e2eFrameLen, e2eSampleRate, e2eToneFreq, 0.15, i*e2eFrameLen))
	}

	eng, err := New(e2eConfig(), newStubSource(frames))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var col collector
	eng.Subscribe(col.collect)

	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 10*time.Second, func() bool { return col.len() == publishable })
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	stats := eng.Stats()
	if stats.FramesDropped != 0 {
		t.Errorf("dropped %d frames, expected none", stats.FramesDropped)
	}
	if stats.CyclesRun != uint64(totalFrames) {
		t.Errorf("ran %d cycles, expected %d", stats.CyclesRun, totalFrames)
	}
	if stats.CyclesSilent != silentFrames {
		t.Errorf("%d silent cycles, expected %d", stats.CyclesSilent, silentFrames)
	}
	if stats.CyclesPublished != uint64(publishable) {
		t.Errorf("published %d cycles, expected %d", stats.CyclesPublished, publishable)
	}

	fss := col.snapshot()

	var onsets, beats []int
	for i, fs := range fss {
		if fs.OnsetDetected {
			onsets = append(onsets, i)
		}
		if fs.BeatDetected {
			beats = append(beats, i)
		}
	}

	if len(onsets) == 0 || onsets[0] != burstAt {
		t.Errorf("expected first onset at cycle %d, got %v", burstAt, onsets)
	}
	// The window holds two frames, so burst energy can linger for at
	// most two cycles into the tone.
	for _, i := range onsets {
		if i < burstAt || i > burstAt+3 {
			t.Errorf("onset at cycle %d, outside the burst neighborhood", i)
		}
	}
	if fss[burstAt].OnsetStrength <= 0 {
		t.Errorf("expected positive onset strength at the burst, got %f", fss[burstAt].OnsetStrength)
	}

	beatSeen := false
	for _, i := range beats {
		if i == burstAt {
			beatSeen = true
		}
	}
	if !beatSeen {
		t.Errorf("expected a beat at the burst cycle, got %v", beats)
	}

	// The steady tail must be event-free.
	tail := fss[publishable-40:]
	for i, fs := range tail {
		if fs.OnsetDetected {
			t.Errorf("spurious onset %d cycles into the steady tail", i)
		}
		if fs.BeatDetected {
			t.Errorf("spurious beat %d cycles into the steady tail", i)
		}
	}

	// The smoothed centroid converges onto the tone frequency.
	binWidth := e2eSampleRate / e2eWindowLen
	final := fss[publishable-1]
	if math.Abs(final.SpectralCentroid-e2eToneFreq) > binWidth {
		t.Errorf("tail centroid %.1f Hz not within %.1f Hz of %.1f Hz",
			final.SpectralCentroid, binWidth, e2eToneFreq)
	}
	if math.Abs(final.PeakFrequency-e2eToneFreq) > binWidth {
		t.Errorf("tail peak frequency %.1f Hz not within one bin of %.1f Hz",
			final.PeakFrequency, e2eToneFreq)
	}

	// Loudness envelope: burst above steady tone, tone well above the
	// quiet phase.
	burstPeak := 0.0
	for _, fs := range fss[burstAt : burstAt+burstFrames] {
		if fs.RMS > burstPeak {
			burstPeak = fs.RMS
		}
	}
	toneSteady := final.RMS
	quietSteady := fss[burstAt-1].RMS
	if burstPeak <= toneSteady {
		t.Errorf("burst RMS %f not above steady tone RMS %f", burstPeak, toneSteady)
	}
	if toneSteady <= 5*quietSteady {
		t.Errorf("tone RMS %f not well above quiet RMS %f", toneSteady, quietSteady)
	}
}

func TestEngineSilentInputPublishesNothing(t *testing.T) {
	frames := make([][]float32, 30)
	for i := range frames {
		frames[i] = synth.Silence(e2eFrameLen)
	}

	eng, err := New(e2eConfig(), newStubSource(frames))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var col collector
	eng.Subscribe(col.collect)

	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return eng.Stats().CyclesSilent == 30 })
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if col.len() != 0 {
		t.Errorf("silent input published %d feature sets", col.len())
	}
	if _, ok := eng.Latest(); ok {
		t.Error("Latest should report nothing for silent input")
	}
}

// TestEngineDoneSignalsEndOfStream covers offline runs: once a finite
// source reports a clean end of stream, Done must close so callers can
// shut down instead of blocking forever.
func TestEngineDoneSignalsEndOfStream(t *testing.T) {
	frames := make([][]float32, 10)
	for i := range frames {
		frames[i] = synth.Sine(e2eFrameLen, e2eSampleRate, 170, 0.05, i*e2eFrameLen)
	}

	eng, err := New(e2eConfig(), newStubSource(frames))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-eng.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after end of stream")
	}

	if eng.Running() {
		t.Error("engine still reports running after end of stream")
	}
	if got := eng.Stats().CyclesRun; got != uint64(len(frames)) {
		t.Errorf("ran %d cycles before finishing, expected %d", got, len(frames))
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop after end of stream: %v", err)
	}
}

// tickingSource delivers quiet frames forever until stopped.
type tickingSource struct {
	errs chan error
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newTickingSource() *tickingSource {
	return &tickingSource{errs: make(chan error, 1), done: make(chan struct{})}
}

func (s *tickingSource) Start(deliver func([]float32)) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		frame := synth.Sine(e2eFrameLen, e2eSampleRate, 170, 0.05, 0)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				deliver(frame)
			}
		}
	}()
	return nil
}

func (s *tickingSource) Stop() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *tickingSource) Errors() <-chan error { return s.errs }

func TestEngineStopIsPromptAndIdempotent(t *testing.T) {
	eng, err := New(e2eConfig(), newTickingSource())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.Start(); err == nil {
		t.Error("second Start should fail while running")
	}

	waitFor(t, 5*time.Second, func() bool { return eng.Stats().CyclesRun > 5 })

	done := make(chan error, 1)
	go func() { done <- eng.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}

	if eng.Running() {
		t.Error("engine still reports running after Stop")
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestEngineSourceFailureInvokesCallback(t *testing.T) {
	src := newTickingSource()
	eng, err := New(e2eConfig(), src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var mu sync.Mutex
	var got error
	eng.OnError(func(err error) {
		mu.Lock()
		got = err
		mu.Unlock()
	})

	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.errs <- errSimulatedFailure

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	})
	if eng.Running() {
		t.Error("engine should stop running after a terminal source error")
	}
	eng.Stop()
}

var errSimulatedFailure = errors.New("simulated device failure")
