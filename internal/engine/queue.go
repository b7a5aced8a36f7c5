// SPDX-License-Identifier: MIT
/*
Package engine wires a frame source to the analysis chain:
- Bounded frame queue decoupling the capture callback from analysis
- Analysis loop owning all mutable DSP state
- Feature publisher fanning results out to subscribers
- Optional WAV tap recording the analyzed audio
*/
package engine

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrQueueTimeout reports that no frame arrived within the poll window.
var ErrQueueTimeout = errors.New("frame queue: pop timed out")

// FrameQueue is a bounded handoff between the capture callback and the
// analysis loop. Push never blocks and never allocates: when the queue
// is full the incoming frame is dropped and counted, keeping the oldest
// queued frames intact. Pop blocks the consumer up to a timeout.
//
// Buffers are recycled through a free list sized capacity+1 so a frame
// being analyzed never aliases one being written.
type FrameQueue struct {
	frames  chan []float32
	free    chan []float32
	dropped atomic.Uint64
}

// NewFrameQueue creates a queue holding up to capacity frames of
// frameLen samples each. All buffers are allocated up front.
func NewFrameQueue(capacity, frameLen int) *FrameQueue {
	q := &FrameQueue{
		frames: make(chan []float32, capacity),
		free:   make(chan []float32, capacity+1),
	}
	for i := 0; i < capacity+1; i++ {
		q.free <- make([]float32, frameLen)
	}
	return q
}

// TryPush copies the frame into a recycled buffer and enqueues it.
// Returns false when the queue is full and the frame was dropped.
// Performance Critical:
// - Called from the audio callback thread
// - No allocations, never blocks
func (q *FrameQueue) TryPush(frame []float32) bool {
	var buf []float32
	select {
	case buf = <-q.free:
	default:
		q.dropped.Add(1)
		return false
	}

	copy(buf, frame)

	select {
	case q.frames <- buf:
		return true
	default:
		// Queue full despite a free buffer; return it and drop.
		q.free <- buf
		q.dropped.Add(1)
		return false
	}
}

// Pop returns the oldest queued frame, waiting up to timeout. The
// caller must hand the buffer back with Recycle when done.
func (q *FrameQueue) Pop(timeout time.Duration) ([]float32, error) {
	select {
	case frame := <-q.frames:
		return frame, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-q.frames:
		return frame, nil
	case <-timer.C:
		return nil, ErrQueueTimeout
	}
}

// Recycle returns a buffer obtained from Pop to the free list.
func (q *FrameQueue) Recycle(frame []float32) {
	select {
	case q.free <- frame:
	default:
	}
}

// Dropped reports how many frames were discarded because the queue was
// full.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len reports how many frames are currently queued.
func (q *FrameQueue) Len() int {
	return len(q.frames)
}
