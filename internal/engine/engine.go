// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"beatscope/internal/analysis"
	"beatscope/internal/audio"
	"beatscope/internal/config"
	applog "beatscope/internal/log"
)

// Stats is a snapshot of the engine's cycle counters.
type Stats struct {
	FramesDropped   uint64
	CyclesRun       uint64
	CyclesSilent    uint64
	CyclesPublished uint64
}

// Engine connects a SampleSource to the analysis chain. The capture
// callback only copies frames into the queue; the analysis goroutine
// owns the window, the detectors, and the publisher, so no DSP state
// needs locking.
type Engine struct {
	cfg    *config.Config
	source audio.SampleSource

	queue     *FrameQueue
	window    *analysis.Window
	spectral  *analysis.SpectralAnalyzer
	onset     *analysis.OnsetDetector
	beat      *analysis.BeatDetector
	publisher *Publisher

	rec     atomic.Pointer[recorder]
	onError atomic.Pointer[func(error)]

	running    atomic.Bool
	done       chan struct{}
	finished   chan struct{}
	wg         sync.WaitGroup
	stopOnce   sync.Once
	finishOnce sync.Once

	cyclesRun       atomic.Uint64
	cyclesSilent    atomic.Uint64
	cyclesPublished atomic.Uint64
}

// New builds an engine around the given source. The source is not
// started until Start.
func New(cfg *config.Config, source audio.SampleSource) (*Engine, error) {
	window, err := analysis.NewWindow(cfg.Audio.WindowLength, cfg.Audio.FrameLength)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	spectral, err := analysis.NewSpectralAnalyzer(cfg.Audio.WindowLength, cfg.Audio.SampleRate,
		cfg.Analysis.FreqMin, cfg.Analysis.FreqMax, cfg.Analysis.RolloffFraction)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		source:    source,
		queue:     NewFrameQueue(cfg.Analysis.QueueCapacity, cfg.Audio.FrameLength),
		window:    window,
		spectral:  spectral,
		onset:     analysis.NewOnsetDetector(spectral.Bins(), cfg.Analysis.OnsetHistory, cfg.Analysis.OnsetSensitivity),
		beat:      analysis.NewBeatDetector(cfg.Analysis.BeatMultiplier, cfg.Analysis.BeatSmoothing),
		publisher: NewPublisher(1 - cfg.Analysis.FeatureSmoothing),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	return e, nil
}

// Subscribe registers a feature subscriber. Must be called before
// Start.
func (e *Engine) Subscribe(s Subscriber) {
	e.publisher.Subscribe(s)
}

// Latest returns the most recently published feature set, if any.
func (e *Engine) Latest() (analysis.FeatureSet, bool) {
	return e.publisher.Latest()
}

// OnError registers a callback invoked once when the source fails
// terminally. The callback runs on the analysis goroutine.
func (e *Engine) OnError(fn func(error)) {
	e.onError.Store(&fn)
}

// Start launches the analysis loop and then the source.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already started")
	}

	e.wg.Add(1)
	go e.run()

	if err := e.source.Start(e.deliver); err != nil {
		e.stopOnce.Do(func() { close(e.done) })
		e.wg.Wait()
		e.running.Store(false)
		return fmt.Errorf("engine: start source: %w", err)
	}

	applog.Infof("Engine: Analysis loop running (window %d, frame %d, queue %d)",
		e.cfg.Audio.WindowLength, e.cfg.Audio.FrameLength, e.cfg.Analysis.QueueCapacity)
	return nil
}

// deliver is the source callback. It runs on the capture thread and
// must not block.
func (e *Engine) deliver(frame []float32) {
	e.queue.TryPush(frame)
}

// Done returns a channel closed when the analysis loop exits, whether
// by Stop, a clean end of stream, or a terminal source error. Offline
// runs select on it to terminate once the input is fully analyzed.
func (e *Engine) Done() <-chan struct{} {
	return e.finished
}

// run is the analysis loop. It owns every piece of mutable DSP state.
func (e *Engine) run() {
	defer e.wg.Done()
	defer e.finishOnce.Do(func() { close(e.finished) })

	for {
		select {
		case <-e.done:
			return
		case err := <-e.source.Errors():
			e.handleSourceError(err)
			return
		default:
		}

		frame, err := e.queue.Pop(time.Duration(e.cfg.Analysis.PollTimeout))
		if err != nil {
			continue
		}
		e.processFrame(frame)
	}
}

// processFrame runs one analysis cycle on a queued frame and recycles
// its buffer.
func (e *Engine) processFrame(frame []float32) {
	e.cyclesRun.Add(1)

	if rec := e.rec.Load(); rec != nil {
		if err := rec.write(frame); err != nil {
			applog.Errorf("Engine: Recording write failed: %v", err)
		}
	}

	err := e.window.Push(frame)
	e.queue.Recycle(frame)
	if err != nil {
		applog.Warnf("Engine: Skipping malformed frame: %v", err)
		return
	}

	if e.window.Silent(e.cfg.Analysis.SilenceFloor) {
		e.cyclesSilent.Add(1)
		return
	}

	fs := e.spectral.Analyze(e.window.Samples())
	fs.OnsetDetected, fs.OnsetStrength = e.onset.Detect(e.spectral.Magnitude())
	fs.BeatDetected, fs.BeatStrength = e.beat.Detect(e.spectral.Power())
	fs.Timestamp = time.Now()

	e.publisher.Publish(fs)
	e.cyclesPublished.Add(1)
}

// handleSourceError finishes the loop after a source-reported error.
// A clean end of stream drains the queue first so every captured frame
// is analyzed.
func (e *Engine) handleSourceError(err error) {
	if errors.Is(err, audio.ErrStreamEnded) {
		applog.Infof("Engine: Input stream ended, draining %d queued frame(s)", e.queue.Len())
		for {
			frame, popErr := e.queue.Pop(0)
			if popErr != nil {
				break
			}
			e.processFrame(frame)
		}
		e.running.Store(false)
		return
	}

	applog.Errorf("Engine: Source failed: %v", err)
	e.running.Store(false)
	if fn := e.onError.Load(); fn != nil {
		(*fn)(err)
	}
}

// StartRecording taps analyzed frames into a WAV file.
func (e *Engine) StartRecording(filename string) error {
	if e.rec.Load() != nil {
		return fmt.Errorf("already recording")
	}
	rec, err := newRecorder(filename, int(e.cfg.Audio.SampleRate),
		e.cfg.Audio.FrameLength, e.cfg.Recording.BitDepth)
	if err != nil {
		return err
	}
	e.rec.Store(rec)
	applog.Infof("Engine: Recording to %s (%d-bit)", filename, e.cfg.Recording.BitDepth)
	return nil
}

// StopRecording finalizes the WAV file. No-op when not recording.
func (e *Engine) StopRecording() error {
	rec := e.rec.Swap(nil)
	if rec == nil {
		return nil
	}
	return rec.close()
}

// Stop halts the source, the analysis loop, and any active recording.
// Safe to call more than once.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		if srcErr := e.source.Stop(); srcErr != nil {
			err = srcErr
		}
		close(e.done)
		e.wg.Wait()
		e.running.Store(false)

		if recErr := e.StopRecording(); recErr != nil && err == nil {
			err = recErr
		}
		applog.Infof("Engine: Stopped (%d cycles, %d published, %d silent, %d dropped)",
			e.cyclesRun.Load(), e.cyclesPublished.Load(), e.cyclesSilent.Load(), e.queue.Dropped())
	})
	return err
}

// Running reports whether the analysis loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		FramesDropped:   e.queue.Dropped(),
		CyclesRun:       e.cyclesRun.Load(),
		CyclesSilent:    e.cyclesSilent.Load(),
		CyclesPublished: e.cyclesPublished.Load(),
	}
}
