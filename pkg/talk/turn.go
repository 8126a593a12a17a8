// Package talk implements the duplex session core of vai-talk: the turn
// state machine, the outbound and inbound session flows, and the
// coordinator that runs them concurrently and tears them down in order.
package talk

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// TurnState tracks who holds the conversational floor.
type TurnState int

const (
	StateIdle TurnState = iota
	StateUserSpeaking
	StateWaitingForAgent
	StateAgentSpeaking
	// StateDone is terminal; entered when shutdown begins. No further
	// transitions are accepted.
	StateDone
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUserSpeaking:
		return "user_speaking"
	case StateWaitingForAgent:
		return "waiting_for_agent"
	case StateAgentSpeaking:
		return "agent_speaking"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// CaptureControl is the slice of the capture source the controller drives.
type CaptureControl interface {
	Start(ctx context.Context) error
	Stop()
}

// TurnSignaler emits turn boundaries to the outbound session flow.
type TurnSignaler interface {
	TurnStart(ctx context.Context, turnID string) error
	TurnEnd(ctx context.Context, turnID string) error
}

// Controller is the push-to-talk state machine. All mutations go through
// its methods under a single lock; State returns a consistent snapshot so
// the UI flow can read concurrently. Events that do not match the current
// state are ignored, except shutdown, which always wins.
type Controller struct {
	capture CaptureControl
	signal  TurnSignaler
	logger  *slog.Logger

	// fatal receives capture-device failures surfaced during a toggle.
	fatal func(error)

	mu     sync.Mutex
	state  TurnState
	turnID string
}

type ControllerConfig struct {
	Capture CaptureControl
	Signal  TurnSignaler
	Logger  *slog.Logger
	// OnFatal is invoked (outside the lock) when starting the capture
	// device fails; the coordinator maps this to whole-system cancel.
	OnFatal func(error)
}

func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fatal := cfg.OnFatal
	if fatal == nil {
		fatal = func(error) {}
	}
	return &Controller{
		capture: cfg.Capture,
		signal:  cfg.Signal,
		logger:  logger,
		fatal:   fatal,
		state:   StateIdle,
	}
}

// State returns a snapshot of the current turn state.
func (c *Controller) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Toggle handles the push-to-talk key. From Idle or WaitingForAgent it
// opens a user turn: the turn-start signal is emitted before capture
// begins so the remote observes it ahead of any audio. From UserSpeaking
// it closes the turn: capture stops (and is fully quiesced) before the
// turn-end signal is emitted.
func (c *Controller) Toggle(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle, StateWaitingForAgent:
		c.turnID = uuid.NewString()
		if err := c.signal.TurnStart(ctx, c.turnID); err != nil {
			c.logger.Warn("turn-start signal failed", "turn", c.turnID, "err", err)
		}
		if err := c.capture.Start(ctx); err != nil {
			c.logger.Error("mic capture failed to start", "err", err)
			go c.fatal(err)
			return
		}
		c.state = StateUserSpeaking
		c.logger.Debug("turn opened", "turn", c.turnID)
	case StateUserSpeaking:
		c.capture.Stop()
		if err := c.signal.TurnEnd(ctx, c.turnID); err != nil {
			c.logger.Warn("turn-end signal failed", "turn", c.turnID, "err", err)
		}
		c.state = StateWaitingForAgent
		c.logger.Debug("turn closed", "turn", c.turnID)
	default:
		// Toggling while the agent speaks or after shutdown is a no-op.
	}
}

// AgentAudio records the arrival of the first audio-bearing event of an
// agent turn. UI feedback only; ignored outside WaitingForAgent/Idle.
func (c *Controller) AgentAudio() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateWaitingForAgent, StateIdle:
		c.state = StateAgentSpeaking
	}
}

// AgentDone records the remote turn-complete signal.
func (c *Controller) AgentDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateAgentSpeaking {
		c.state = StateIdle
	}
}

// Shutdown moves to the terminal state and stops capture if the user was
// mid-turn. Idempotent.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	if c.state == StateDone {
		c.mu.Unlock()
		return
	}
	wasSpeaking := c.state == StateUserSpeaking
	c.state = StateDone
	c.mu.Unlock()
	if wasSpeaking {
		c.capture.Stop()
	}
}
