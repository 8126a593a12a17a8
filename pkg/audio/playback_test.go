package audio

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// memSink records writes; optionally it blocks until released to simulate
// a slow output device.
type memSink struct {
	mu      sync.Mutex
	writes  [][]byte
	resets  int
	closed  bool
	release chan struct{} // nil means never block
}

func (s *memSink) Write(pcm []byte) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.writes = append(s.writes, cp)
	return nil
}

func (s *memSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

func chunkN(n int) []byte {
	return []byte(fmt.Sprintf("chunk-%03d", n))
}

func TestPlayer_PreservesWriteOrder(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	p, err := NewPlayer(PlayerConfig{QueueCapacity: 64, Sink: sink})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	for i := 0; i < 20; i++ {
		p.Write(chunkN(i))
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := sink.snapshot()
	if len(got) != 20 {
		t.Fatalf("sink writes = %d, want 20", len(got))
	}
	for i, w := range got {
		if string(w) != string(chunkN(i)) {
			t.Fatalf("write[%d] = %q, want %q", i, w, chunkN(i))
		}
	}
	if p.Dropped() != 0 {
		t.Fatalf("Dropped = %d, want 0", p.Dropped())
	}
}

func TestPlayer_WriteNeverBlocksAndDropsOnOverflow(t *testing.T) {
	t.Parallel()
	sink := &memSink{release: make(chan struct{})}
	p, err := NewPlayer(PlayerConfig{QueueCapacity: 4, Sink: sink})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Consumer is stalled on the first write, so at most capacity+1
		// chunks are in flight; the rest must drop without blocking.
		for i := 0; i < 50; i++ {
			p.Write(chunkN(i))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked with a stalled consumer")
	}
	if p.Dropped() == 0 {
		t.Fatal("expected drops with a stalled consumer and a full queue")
	}

	close(sink.release)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Whatever survived must still be in order.
	got := sink.snapshot()
	last := -1
	for _, w := range got {
		var n int
		if _, err := fmt.Sscanf(string(w), "chunk-%03d", &n); err != nil {
			t.Fatalf("unexpected sink write %q", w)
		}
		if n <= last {
			t.Fatalf("out-of-order playback: %d after %d", n, last)
		}
		last = n
	}
}

func TestPlayer_CloseDrainsRemainingChunks(t *testing.T) {
	t.Parallel()
	sink := &memSink{release: make(chan struct{})}
	p, err := NewPlayer(PlayerConfig{QueueCapacity: 16, Sink: sink})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	for i := 0; i < 10; i++ {
		p.Write(chunkN(i))
	}
	close(sink.release)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(sink.snapshot()); got != 10 {
		t.Fatalf("sink writes after Close = %d, want all 10 drained", got)
	}
	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	if !closed {
		t.Fatal("sink not released after Close")
	}
}

func TestPlayer_WriteAfterCloseIsIgnored(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	p, err := NewPlayer(PlayerConfig{QueueCapacity: 4, Sink: sink})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	p.Write(chunkN(0)) // must not panic or deadlock
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := len(sink.snapshot()); got != 0 {
		t.Fatalf("sink writes = %d, want 0", got)
	}
}

func TestPlayer_ResetDiscardsQueuedAudio(t *testing.T) {
	t.Parallel()
	sink := &memSink{release: make(chan struct{})}
	p, err := NewPlayer(PlayerConfig{QueueCapacity: 16, Sink: sink})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	for i := 0; i < 10; i++ {
		p.Write(chunkN(i))
	}
	p.Reset()

	sink.mu.Lock()
	resets := sink.resets
	sink.mu.Unlock()
	if resets != 1 {
		t.Fatalf("sink resets = %d, want 1", resets)
	}

	close(sink.release)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// The stalled consumer held at most one chunk; everything else was
	// discarded by Reset.
	if got := len(sink.snapshot()); got > 1 {
		t.Fatalf("sink writes after Reset = %d, want <= 1", got)
	}
	if p.Dropped() != 0 {
		t.Fatalf("Reset must not count as drops, got %d", p.Dropped())
	}
}

func TestPlayer_DefaultCapacityCoversThirtySeconds(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	p, err := NewPlayer(PlayerConfig{Sink: sink})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	defer p.Close()
	want := defaultQueueSeconds * int(time.Second/ChunkDuration)
	if got := cap(p.queue); got != want {
		t.Fatalf("default queue capacity = %d chunks, want %d", got, want)
	}
}

var errSinkWrite = errors.New("sink write failed")

type failingSink struct{ memSink }

func (s *failingSink) Write([]byte) error { return errSinkWrite }

func TestPlayer_SinkFailureDoesNotWedgeDrain(t *testing.T) {
	t.Parallel()
	sink := &failingSink{}
	p, err := NewPlayer(PlayerConfig{QueueCapacity: 8, Sink: sink})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	for i := 0; i < 8; i++ {
		p.Write(chunkN(i))
	}
	done := make(chan error, 1)
	go func() { done <- p.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung on a failing sink")
	}
}
