package talk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Playback is the slice of the playback buffer the coordinator owns.
type Playback interface {
	AudioWriter
	Dropped() int64
	Close() error
}

// CoordinatorConfig wires the concurrent flows of one live conversation.
type CoordinatorConfig struct {
	Session Session
	Egress  *Egress

	Capture     CaptureControl
	CaptureErrs <-chan error

	Player Playback

	// Keys delivers decoded keyboard events; a closed channel simply
	// stops keyboard handling.
	Keys <-chan Key

	// Status, when set, is redrawn at every poll tick and receives
	// transcript text.
	Status *Status

	Logger *slog.Logger

	// PollInterval bounds how long the main loop sleeps between keyboard
	// and UI work. Defaults to 50ms.
	PollInterval time.Duration

	// JoinTimeout bounds the shutdown wait for all flows. Defaults to 2s.
	JoinTimeout time.Duration
}

// Coordinator runs the duplex session: capture feeding egress, ingress
// feeding playback, keyboard driving the turn machine, and a single
// cancellation signal unwinding everything in a fixed order.
type Coordinator struct {
	cfg CoordinatorConfig

	errMu    sync.Mutex
	firstErr error

	shutdownOnce sync.Once
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Session == nil || cfg.Egress == nil || cfg.Capture == nil || cfg.Player == nil {
		return nil, fmt.Errorf("talk: coordinator requires session, egress, capture and player")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 2 * time.Second
	}
	return &Coordinator{cfg: cfg}, nil
}

// Run blocks until ctx is canceled, the user quits, or a fatal flow error
// forces cancellation. On return every flow has stopped and both audio
// devices are released. Cancellation is a normal exit: Run returns nil
// unless a fatal error started the teardown.
func (c *Coordinator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	controller := NewController(ControllerConfig{
		Capture: c.cfg.Capture,
		Signal:  c.cfg.Egress,
		Logger:  c.cfg.Logger,
		OnFatal: func(err error) {
			c.fail(fmt.Errorf("capture device: %w", err))
			cancel()
		},
	})

	ingress := NewIngress(c.cfg.Session, c.cfg.Player, controller, c.cfg.Logger)
	if c.cfg.Status != nil {
		ingress.OnText = c.cfg.Status.Print
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.cfg.Egress.Run(runCtx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Once receive ends no inbound events are possible, so unwind
		// the whole session even when the remote closed cleanly.
		defer cancel()
		if err := ingress.Run(runCtx); err != nil {
			c.fail(fmt.Errorf("session receive: %w", err))
		}
	}()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	keys := c.cfg.Keys
	capErrs := c.cfg.CaptureErrs
loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case err, ok := <-capErrs:
			if !ok {
				capErrs = nil
				continue
			}
			c.fail(fmt.Errorf("capture: %w", err))
			cancel()
		case key, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			switch key {
			case KeyToggle:
				controller.Toggle(runCtx)
			case KeyQuit:
				cancel()
			}
		case <-ticker.C:
			if c.cfg.Status != nil {
				c.cfg.Status.Render(controller.State(), c.cfg.Player.Dropped())
			}
		}
	}

	c.teardown(controller)

	if !waitTimeout(&wg, c.cfg.JoinTimeout) {
		c.cfg.Logger.Warn("not all flows stopped within the join timeout")
	}
	if c.cfg.Status != nil {
		c.cfg.Status.Render(StateDone, c.cfg.Player.Dropped())
		c.cfg.Status.Close()
	}
	return c.err()
}

// teardown unwinds the session in a fixed order: capture first (release
// the input device), then playback (drain and release the output
// device), then the remote session. Runs at most once no matter how many
// cancellation triggers fire.
func (c *Coordinator) teardown(controller *Controller) {
	c.shutdownOnce.Do(func() {
		controller.Shutdown()
		if err := c.cfg.Player.Close(); err != nil {
			c.cfg.Logger.Warn("playback close failed", "err", err)
		}
		if err := c.cfg.Session.Close(); err != nil {
			c.cfg.Logger.Warn("session close failed", "err", err)
		}
	})
}

func (c *Coordinator) fail(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.firstErr == nil {
		c.firstErr = err
	}
}

func (c *Coordinator) err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.firstErr
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
