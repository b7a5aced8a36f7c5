// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	applog "beatscope/internal/log"
)

// stallTimeout is how long the watchdog tolerates the callback going
// quiet before declaring the device gone. Generous compared to any
// realistic frame period.
const stallTimeout = 2 * time.Second

// DeviceSource captures mono float32 frames from a PortAudio input
// device. The capture callback does no allocation and never blocks; a
// watchdog goroutine detects a device that silently stops delivering.
type DeviceSource struct {
	device     *portaudio.DeviceInfo
	sampleRate float64
	frameLen   int
	latency    time.Duration

	stream  *portaudio.Stream
	deliver func([]float32)

	lastFrame atomic.Int64 // UnixNano of the most recent callback
	running   atomic.Bool
	errs      chan error
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewDeviceSource opens nothing yet; the stream is created on Start.
// PortAudio must already be initialized.
func NewDeviceSource(device *portaudio.DeviceInfo, sampleRate float64, frameLen int, lowLatency bool) *DeviceSource {
	latency := device.DefaultHighInputLatency
	if lowLatency {
		latency = device.DefaultLowInputLatency
	}
	return &DeviceSource{
		device:     device,
		sampleRate: sampleRate,
		frameLen:   frameLen,
		latency:    latency,
		errs:       make(chan error, 1),
		done:       make(chan struct{}),
	}
}

// Start opens and starts the input stream and launches the watchdog.
func (s *DeviceSource) Start(deliver func(frame []float32)) error {
	if s.running.Load() {
		return fmt.Errorf("device source already started")
	}
	s.deliver = deliver

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   s.device,
			Latency:  s.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		FramesPerBuffer: s.frameLen,
		SampleRate:      s.sampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.processInput)
	if err != nil {
		return &DeviceError{Op: "open stream", Err: err}
	}
	s.stream = stream

	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		s.stream = nil
		return &DeviceError{Op: "start stream", Err: err}
	}

	s.lastFrame.Store(time.Now().UnixNano())
	s.running.Store(true)

	s.wg.Add(1)
	go s.watchdog()

	applog.Infof("Audio: Capturing from %q (%.0f Hz, %d frames/buffer)",
		s.device.Name, s.sampleRate, s.frameLen)
	return nil
}

// processInput is the PortAudio capture callback.
// Performance Critical:
// - Runs on the audio callback thread
// - No allocations, no locks, never blocks
func (s *DeviceSource) processInput(in []float32) {
	s.lastFrame.Store(time.Now().UnixNano())
	s.deliver(in)
}

// watchdog reports ErrDeviceUnavailable when the callback stalls.
func (s *DeviceSource) watchdog() {
	defer s.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastFrame.Load())
			if gap := time.Since(last); gap > stallTimeout {
				applog.Errorf("Audio: No frames from %q for %v, assuming device lost",
					s.device.Name, gap.Round(time.Millisecond))
				select {
				case s.errs <- &DeviceError{Op: "capture", Err: ErrDeviceUnavailable}:
				default:
				}
				return
			}
		}
	}
}

// Stop halts capture and closes the stream. Safe to call more than once.
func (s *DeviceSource) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.running.Store(false)

		if s.stream != nil {
			if stopErr := s.stream.Stop(); stopErr != nil {
				err = &DeviceError{Op: "stop stream", Err: stopErr}
			}
			if closeErr := s.stream.Close(); closeErr != nil && err == nil {
				err = &DeviceError{Op: "close stream", Err: closeErr}
			}
			s.stream = nil
		}
	})
	return err
}

// Errors reports asynchronous capture failures.
func (s *DeviceSource) Errors() <-chan error {
	return s.errs
}
