package engine

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// recorder taps analyzed frames into a WAV file. Writes happen on the
// analysis goroutine, never in the capture callback.
type recorder struct {
	mu        sync.Mutex
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer
	bitDepth  int
	scale     float32
}

func newRecorder(filename string, sampleRate, frameLen, bitDepth int) (*recorder, error) {
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, fmt.Errorf("unsupported recording bit depth: %d", bitDepth)
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	return &recorder{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, bitDepth, 1, 1),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  sampleRate,
			},
			Data: make([]int, frameLen),
		},
		bitDepth: bitDepth,
		scale:    float32(int(1)<<(bitDepth-1) - 1),
	}, nil
}

// write converts one float32 frame to integer PCM and appends it.
func (r *recorder) write(frame []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return nil
	}

	r.sampleBuf.Data = r.sampleBuf.Data[:len(frame)]
	for i, s := range frame {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		r.sampleBuf.Data[i] = int(s * r.scale)
	}
	return r.encoder.Write(r.sampleBuf)
}

// close finalizes the WAV header and closes the file.
func (r *recorder) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return nil
	}
	if err := r.encoder.Close(); err != nil {
		r.file.Close()
		r.encoder = nil
		return err
	}
	r.encoder = nil
	return r.file.Close()
}
