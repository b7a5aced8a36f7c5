package audio

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "beatscope/internal/log"
)

// FileSource replays a WAV file as a stream of mono float32 frames.
// Multi-channel files use the first channel only. The final partial
// frame is zero-padded. When realtime is set, frames are paced at the
// file's sample rate so the engine behaves as it would on live input.
type FileSource struct {
	path     string
	frameLen int
	realtime bool

	file    *os.File
	decoder *wav.Decoder

	errs     chan error
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFileSource opens the WAV file and validates its header.
func NewFileSource(path string, frameLen int, realtime bool) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav file: %w", err)
	}

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}

	return &FileSource{
		path:     path,
		frameLen: frameLen,
		realtime: realtime,
		file:     file,
		decoder:  decoder,
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}, nil
}

// SampleRate reports the file's sample rate.
func (s *FileSource) SampleRate() float64 {
	return float64(s.decoder.SampleRate)
}

// Start launches the reader goroutine and returns immediately.
func (s *FileSource) Start(deliver func(frame []float32)) error {
	channels := int(s.decoder.NumChans)
	if channels < 1 {
		return fmt.Errorf("wav file reports %d channels", channels)
	}

	applog.Infof("Audio: Replaying %q (%d Hz, %d-bit, %d channel(s))",
		s.path, s.decoder.SampleRate, s.decoder.BitDepth, channels)

	s.wg.Add(1)
	go s.readLoop(deliver, channels)
	return nil
}

func (s *FileSource) readLoop(deliver func([]float32), channels int) {
	defer s.wg.Done()

	// Full-scale value for the file's bit depth, for int -> [-1, 1].
	scale := float32(int(1) << (s.decoder.BitDepth - 1))

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  int(s.decoder.SampleRate),
		},
		Data: make([]int, s.frameLen*channels),
	}
	frame := make([]float32, s.frameLen)

	var ticker *time.Ticker
	if s.realtime {
		period := time.Duration(float64(s.frameLen) / float64(s.decoder.SampleRate) * float64(time.Second))
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.decoder.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			select {
			case s.errs <- fmt.Errorf("read wav file: %w", err):
			default:
			}
			return
		}
		if n == 0 {
			select {
			case s.errs <- ErrStreamEnded:
			default:
			}
			return
		}

		samples := n / channels
		for i := 0; i < samples; i++ {
			frame[i] = float32(buf.Data[i*channels]) / scale
		}
		for i := samples; i < s.frameLen; i++ {
			frame[i] = 0
		}

		if ticker != nil {
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
		deliver(frame)
	}
}

// Stop halts playback and closes the file. Safe to call more than once.
func (s *FileSource) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.file.Close()
	})
	return err
}

// Errors reports read failures and end of stream.
func (s *FileSource) Errors() <-chan error {
	return s.errs
}
