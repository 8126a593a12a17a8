package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// EmitFunc delivers one fixed-size PCM chunk downstream. An error return
// stops the capture reader; a ctx-cancellation error is a normal exit.
type EmitFunc func(ctx context.Context, pcm []byte) error

// CaptureConfig configures a microphone capture source.
type CaptureConfig struct {
	// Emit receives every captured chunk in order. Required.
	Emit EmitFunc

	// ChunkBytes overrides the frame size; defaults to ChunkBytes.
	ChunkBytes int

	// Command builds the capture subprocess. Defaults to an ffmpeg
	// invocation for the current platform; tests substitute their own.
	Command func(ctx context.Context) *exec.Cmd

	Logger *slog.Logger
}

// Capture reads raw PCM from a microphone subprocess and emits fixed-size
// chunks. It is restartable: Stop releases the device and a later Start
// acquires it again from scratch. At most one acquisition is active at a
// time.
type Capture struct {
	cfg CaptureConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	errCh  chan error
}

// ErrNoAudio is reported when the capture process exits without having
// produced a single byte, which almost always means the device could not
// actually be opened.
var ErrNoAudio = errors.New("audio: capture produced no data")

func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.Emit == nil {
		return nil, errors.New("audio: capture requires an Emit func")
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = ChunkBytes
	}
	if cfg.Command == nil {
		cfg.Command = defaultMicCommand
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Capture{
		cfg:   cfg,
		errCh: make(chan error, 1),
	}, nil
}

// Errs surfaces fatal capture errors (device unavailable, reader failure).
// The channel is never closed and holds at most one error.
func (c *Capture) Errs() <-chan error { return c.errCh }

// Start opens the input device and begins emitting chunks. It fails if a
// previous acquisition is still active or if the subprocess cannot spawn.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return errors.New("audio: capture already active")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := c.cfg.Command(runCtx)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("audio: open capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("audio: start capture process: %w", err)
	}

	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		err := c.readLoop(runCtx, stdout)
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		if err != nil && runCtx.Err() == nil {
			c.fatal(err)
		}
	}()
	return nil
}

// Stop halts emission and releases the device. No chunk is emitted after
// Stop returns. Safe to call when not active.
func (c *Capture) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Capture) readLoop(ctx context.Context, r io.Reader) error {
	frame := c.cfg.ChunkBytes
	buf := make([]byte, 0, frame*4)
	tmp := make([]byte, 8*1024)

	sawData := false
	levelChecked := false
	levelBytes, levelPeak := 0, 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(tmp)
		if n > 0 {
			sawData = true
			buf = append(buf, tmp[:n]...)
		}
		for len(buf) >= frame {
			chunk := make([]byte, frame)
			copy(chunk, buf[:frame])
			buf = buf[frame:]
			if !levelChecked {
				peak, _ := Stats(chunk)
				if peak > levelPeak {
					levelPeak = peak
				}
				levelBytes += len(chunk)
				if Duration(levelBytes) >= time.Second {
					levelChecked = true
					if levelPeak < 64 {
						c.cfg.Logger.Warn("mic level is near silent, check input device", "peak", levelPeak)
					}
				}
			}
			if emitErr := c.cfg.Emit(ctx, chunk); emitErr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("audio: emit chunk: %w", emitErr)
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				if !sawData {
					return ErrNoAudio
				}
				return fmt.Errorf("audio: capture ended early: %w", err)
			}
			return fmt.Errorf("audio: read capture stream: %w", err)
		}
	}
}

func (c *Capture) fatal(err error) {
	c.cfg.Logger.Error("capture failed", "err", err)
	select {
	case c.errCh <- err:
	default:
	}
}

// defaultMicCommand builds the platform ffmpeg invocation emitting raw
// s16le mono audio at the session sample rate on stdout.
func defaultMicCommand(ctx context.Context) *exec.Cmd {
	var args []string
	switch runtime.GOOS {
	case "darwin":
		// `none:<index>` avoids opening a video device alongside the mic.
		args = []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", "none:0",
		}
	default:
		args = []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
		}
	}
	args = append(args,
		"-ac", "1", "-ar", fmt.Sprintf("%d", SampleRateHz),
		"-f", "s16le", "-",
	)
	return exec.CommandContext(ctx, "ffmpeg", args...)
}

// CheckCaptureBinary reports whether the capture subprocess binary is
// present, so configuration problems surface before any flow starts.
func CheckCaptureBinary() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return errors.New("audio: ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}
	return nil
}

// waitOrTimeout joins a done channel with an upper bound; used by owners
// that must never hang on a stuck flow.
func waitOrTimeout(done <-chan struct{}, d time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
