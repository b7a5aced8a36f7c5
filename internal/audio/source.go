/*
Package audio provides frame sources for the analysis engine:
- Live capture from an input device via PortAudio
- Offline playback from a WAV file

Both sources deliver fixed-length float32 frames through a callback and
report asynchronous failures on an error channel.
*/
package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable reports that the capture device stopped
	// delivering frames, usually because it was unplugged.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrStreamEnded reports that a finite source ran out of frames.
	// It is a clean end of stream, not a failure.
	ErrStreamEnded = errors.New("audio stream ended")
)

// DeviceError wraps a capture failure with the operation that hit it.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// SampleSource produces fixed-length frames of float32 samples.
//
// Start begins delivery and returns once the source is running. The
// deliver callback is invoked from the source's own goroutine or audio
// callback thread; it must not block. Stop halts delivery and releases
// resources. Errors reports asynchronous failures; a source sends at
// most one terminal error.
type SampleSource interface {
	Start(deliver func(frame []float32)) error
	Stop() error
	Errors() <-chan error
}
