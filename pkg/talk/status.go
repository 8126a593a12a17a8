package talk

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleIdle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleUser    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	styleWaiting = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))
	styleAgent   = lipgloss.NewStyle().Foreground(lipgloss.Color("78")).Bold(true)
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Status renders a one-line state indicator over the terminal's current
// line. It only ever reads TurnState snapshots; it mutates nothing in the
// session core. Writes are serialized so transcript lines and the status
// line never interleave.
type Status struct {
	mu    sync.Mutex
	w     io.Writer
	frame int
}

func NewStatus(w io.Writer) *Status {
	return &Status{w: w}
}

// Render redraws the status line for the given state. Called from the UI
// ticker at its poll interval.
func (s *Status) Render(state TurnState, dropped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = (s.frame + 1) % len(spinnerFrames)
	line := s.line(state)
	if dropped > 0 {
		line += styleDim.Render(fmt.Sprintf("  (%d chunks dropped)", dropped))
	}
	fmt.Fprintf(s.w, "\r\x1b[K%s", line)
}

func (s *Status) line(state TurnState) string {
	switch state {
	case StateUserSpeaking:
		return styleUser.Render("● recording") + styleDim.Render("  space to send")
	case StateWaitingForAgent:
		return styleWaiting.Render(spinnerFrames[s.frame]+" thinking") + styleDim.Render("  space to interject")
	case StateAgentSpeaking:
		return styleAgent.Render("▶ speaking") + styleDim.Render("  space to interject")
	case StateDone:
		return styleDim.Render("session closed")
	default:
		return styleIdle.Render("○ idle") + styleDim.Render("  space to talk, q to quit")
	}
}

// Print clears the status line, writes one transcript line, and leaves
// the cursor ready for the next Render. Raw terminal mode needs the
// explicit carriage return.
func (s *Status) Print(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\r\x1b[K%s\r\n", text)
}

// Close clears the status line so the shell prompt lands clean.
func (s *Status) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.w, "\r\x1b[K")
}
