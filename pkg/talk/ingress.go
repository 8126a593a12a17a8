package talk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// AudioWriter is the slice of the playback buffer the ingress flow needs.
type AudioWriter interface {
	Write(pcm []byte)
	Reset()
}

// Ingress drains inbound session events: audio payloads go to playback in
// wire order, turn signals go to the controller, text goes to the UI.
type Ingress struct {
	session    Session
	player     AudioWriter
	controller *Controller
	logger     *slog.Logger

	// OnText, when set, receives agent text/transcription fragments.
	OnText func(string)
}

func NewIngress(session Session, player AudioWriter, controller *Controller, logger *slog.Logger) *Ingress {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingress{
		session:    session,
		player:     player,
		controller: controller,
		logger:     logger,
	}
}

// Run receives until ctx is canceled or the session fails terminally. A
// terminal receive error is returned so the coordinator can cancel the
// rest of the system; cancellation itself returns nil.
func (in *Ingress) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		event, err := in.session.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				in.logger.Info("session closed by remote")
				return nil
			}
			return err
		}
		in.handle(event)
	}
}

func (in *Ingress) handle(event *ServerEvent) {
	if event == nil {
		return
	}
	if event.Interrupted {
		in.logger.Debug("agent response interrupted, flushing playback")
		in.player.Reset()
	}
	if audio := event.playableAudio(); len(audio) > 0 {
		in.controller.AgentAudio()
		for _, p := range audio {
			in.player.Write(p.Data)
		}
	}
	if text := strings.TrimSpace(event.Text); text != "" && in.OnText != nil {
		in.OnText(text)
	}
	if event.TurnComplete {
		in.controller.AgentDone()
	}
}
