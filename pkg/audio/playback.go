package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Sink is the audio output device a Player feeds. Implementations own the
// device exclusively and accept raw PCM in the package format.
type Sink interface {
	Write(pcm []byte) error
	// Reset discards any device-buffered audio and prepares the sink for
	// fresh output. Used when the remote side abandons a response.
	Reset() error
	Close() error
}

// PlayerConfig configures a playback buffer and its output sink.
type PlayerConfig struct {
	// QueueCapacity bounds the playback queue, in chunks. Defaults to
	// about 30 seconds of audio.
	QueueCapacity int

	// Sink receives dequeued audio. Defaults to an ffplay subprocess.
	Sink Sink

	Logger *slog.Logger
}

const defaultQueueSeconds = 30

// Player is a bounded, order-preserving playback queue with a background
// consumer feeding the output sink. Writes never block: when the queue is
// full the incoming chunk is discarded and counted, keeping the network
// receive path live at the cost of a small audible gap.
type Player struct {
	cfg   PlayerConfig
	queue chan []byte

	mu     sync.Mutex
	closed bool

	dropped atomic.Int64
	done    chan struct{}
}

func NewPlayer(cfg PlayerConfig) (*Player, error) {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueSeconds * int(time.Second/ChunkDuration)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		sink, err := newFFPlaySink(ffplaySinkConfig{})
		if err != nil {
			return nil, err
		}
		cfg.Sink = sink
	}
	p := &Player{
		cfg:   cfg,
		queue: make(chan []byte, cfg.QueueCapacity),
		done:  make(chan struct{}),
	}
	go p.consume()
	return p, nil
}

// Write enqueues one chunk for playback and returns immediately. Chunks
// play in the exact order written. After Close, writes are ignored.
func (p *Player) Write(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- chunk:
	default:
		n := p.dropped.Add(1)
		if n == 1 || n%50 == 0 {
			p.cfg.Logger.Warn("playback queue full, dropping audio", "dropped", n)
		}
	}
}

// Dropped reports how many chunks have been discarded due to overflow.
func (p *Player) Dropped() int64 { return p.dropped.Load() }

// Reset discards all queued audio and resets the sink. Queued chunks do
// not count as drops.
func (p *Player) Reset() {
	for {
		select {
		case _, ok := <-p.queue:
			if !ok {
				// Closed for writes; the drain already owns the rest.
				return
			}
		default:
			if err := p.cfg.Sink.Reset(); err != nil {
				p.cfg.Logger.Warn("playback sink reset failed", "err", err)
			}
			return
		}
	}
}

// Close marks the queue closed for writes, lets the consumer drain what
// remains, and releases the sink. It is idempotent and returns once the
// consumer has stopped or a bounded wait expires.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	if !waitOrTimeout(p.done, 5*time.Second) {
		p.cfg.Logger.Warn("playback consumer did not drain in time")
	}
	return p.cfg.Sink.Close()
}

// Done closes when the consumer has drained the queue and stopped.
func (p *Player) Done() <-chan struct{} { return p.done }

func (p *Player) consume() {
	defer close(p.done)
	for chunk := range p.queue {
		if err := p.cfg.Sink.Write(chunk); err != nil {
			// The sink owns pacing; a dead sink makes playback silent
			// but must not wedge the drain.
			p.cfg.Logger.Warn("playback sink write failed", "err", err)
		}
	}
}

// ffplaySink drives an ffplay subprocess reading s16le PCM on stdin. The
// process applies its own output pacing, so writes block only when its
// internal buffer is full, which is the cadence the consumer wants.
type ffplaySink struct {
	cfg ffplaySinkConfig

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

type ffplaySinkConfig struct {
	path   string
	volume int
}

func newFFPlaySink(cfg ffplaySinkConfig) (*ffplaySink, error) {
	if cfg.path == "" {
		cfg.path = "ffplay"
	}
	if cfg.volume <= 0 {
		cfg.volume = 80
	}
	if _, err := exec.LookPath(cfg.path); err != nil {
		return nil, errors.New("audio: ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	s := &ffplaySink{cfg: cfg}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ffplaySink) startLocked() error {
	// ffplay rejects ffmpeg-style `-ac`; it takes `-ch_layout` instead.
	cmd := exec.Command(s.cfg.path,
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-volume", fmt.Sprintf("%d", s.cfg.volume),
		"-f", "s16le",
		"-ch_layout", "mono",
		"-ar", fmt.Sprintf("%d", SampleRateHz),
		"-i", "-",
	)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL can pick a dummy audio backend on macOS; prefer CoreAudio
		// unless the user overrides it.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("audio: open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("audio: start ffplay: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

func (s *ffplaySink) Write(pcm []byte) error {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return errors.New("audio: ffplay is not running")
	}
	_, err := stdin.Write(pcm)
	return err
}

func (s *ffplaySink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.startLocked()
}

func (s *ffplaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *ffplaySink) closeLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	s.stdin = nil
}

// DiscardSink swallows all audio; used when the speaker is disabled.
type DiscardSink struct{}

func (DiscardSink) Write([]byte) error { return nil }
func (DiscardSink) Reset() error       { return nil }
func (DiscardSink) Close() error       { return nil }
