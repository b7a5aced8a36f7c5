package engine

import (
	"errors"
	"testing"
	"time"
)

func frameOf(value float32, frameLen int) []float32 {
	f := make([]float32, frameLen)
	for i := range f {
		f[i] = value
	}
	return f
}

func TestQueuePushPopFIFO(t *testing.T) {
	q := NewFrameQueue(4, 8)

	for i := 1; i <= 3; i++ {
		if !q.TryPush(frameOf(float32(i), 8)) {
			t.Fatalf("push %d failed on non-full queue", i)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 queued frames, got %d", q.Len())
	}

	for i := 1; i <= 3; i++ {
		frame, err := q.Pop(time.Second)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if frame[0] != float32(i) {
			t.Errorf("expected frame %d, got %f", i, frame[0])
		}
		q.Recycle(frame)
	}
}

func TestQueueDropsNewestWhenFull(t *testing.T) {
	q := NewFrameQueue(2, 8)

	if !q.TryPush(frameOf(1, 8)) || !q.TryPush(frameOf(2, 8)) {
		t.Fatal("initial pushes failed")
	}
	// Queue full: the incoming frame is the one discarded.
	if q.TryPush(frameOf(3, 8)) {
		t.Error("expected push to fail on full queue")
	}
	if q.Dropped() != 1 {
		t.Errorf("expected 1 dropped frame, got %d", q.Dropped())
	}

	// Oldest frames survive unchanged, in order.
	for i := 1; i <= 2; i++ {
		frame, err := q.Pop(time.Second)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if frame[0] != float32(i) {
			t.Errorf("expected frame %d, got %f", i, frame[0])
		}
		q.Recycle(frame)
	}
}

func TestQueuePushCopiesFrame(t *testing.T) {
	q := NewFrameQueue(2, 4)

	src := frameOf(5, 4)
	q.TryPush(src)
	src[0] = 99 // caller reuses its buffer immediately

	frame, err := q.Pop(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if frame[0] != 5 {
		t.Errorf("queued frame aliases the caller's buffer: %f", frame[0])
	}
}

func TestQueuePopTimeout(t *testing.T) {
	q := NewFrameQueue(2, 8)

	start := time.Now()
	_, err := q.Pop(20 * time.Millisecond)
	if !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("expected ErrQueueTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Pop returned after %v, before the timeout", elapsed)
	}
}

func TestQueueSteadyStateZeroAllocs(t *testing.T) {
	q := NewFrameQueue(4, 1024)
	frame := frameOf(0.5, 1024)

	allocs := testing.AllocsPerRun(100, func() {
		q.TryPush(frame)
		buf, err := q.Pop(time.Millisecond)
		if err == nil {
			q.Recycle(buf)
		}
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in push/pop cycle, got %.1f", allocs)
	}
}

func TestQueueConcurrentProducer(t *testing.T) {
	q := NewFrameQueue(8, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			q.TryPush(frameOf(float32(i), 16))
		}
	}()

	consumed := 0
	for {
		frame, err := q.Pop(50 * time.Millisecond)
		if err != nil {
			break
		}
		consumed++
		q.Recycle(frame)
	}
	<-done

	if consumed == 0 {
		t.Fatal("consumed no frames")
	}
	if uint64(consumed)+q.Dropped() != 1000 {
		t.Errorf("consumed %d + dropped %d != 1000 produced", consumed, q.Dropped())
	}
}
