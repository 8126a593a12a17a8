package talk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ConnectConfig selects one of the two connection modes and the session
// parameters. The two modes differ only in credentials/endpoint and the
// media-type tag attached to outbound audio.
type ConnectConfig struct {
	Model string

	// Vertex selects the Vertex AI backend (project/location credentials)
	// instead of the Gemini API backend (API key).
	Vertex   bool
	APIKey   string
	Project  string
	Location string

	// MediaType tags outbound audio chunks; must match the negotiated
	// session format.
	MediaType string

	Voice        string
	SystemPrompt string
}

// Connect establishes a live session against the configured backend and
// adapts it to the Session interface. Automatic activity detection is
// disabled: turn boundaries come from the push-to-talk signals.
func Connect(ctx context.Context, cfg ConnectConfig) (Session, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("talk: model is required")
	}
	if strings.TrimSpace(cfg.MediaType) == "" {
		return nil, errors.New("talk: media type is required")
	}

	cc := &genai.ClientConfig{}
	if cfg.Vertex {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	} else {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("talk: create client: %w", err)
	}

	live := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		RealtimeInputConfig: &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{Disabled: true},
		},
		// Transcribe the reply so the console can show what was said.
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if v := strings.TrimSpace(cfg.Voice); v != "" {
		live.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: v},
			},
		}
	}
	if p := strings.TrimSpace(cfg.SystemPrompt); p != "" {
		live.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p}}}
	}

	sess, err := client.Live.Connect(ctx, cfg.Model, live)
	if err != nil {
		return nil, fmt.Errorf("talk: connect live session: %w", err)
	}
	return &liveSession{sess: sess, mediaType: cfg.MediaType}, nil
}

// liveSession adapts the SDK live session to the core Session interface.
type liveSession struct {
	sess      *genai.Session
	mediaType string
}

func (s *liveSession) SendTurnStart() error {
	return s.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		ActivityStart: &genai.ActivityStart{},
	})
}

func (s *liveSession) SendTurnEnd() error {
	return s.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		ActivityEnd: &genai.ActivityEnd{},
	})
}

func (s *liveSession) SendAudio(pcm []byte) error {
	return s.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{MIMEType: s.mediaType, Data: pcm},
	})
}

func (s *liveSession) Receive() (*ServerEvent, error) {
	msg, err := s.sess.Receive()
	if err != nil {
		return nil, err
	}
	return translateServerMessage(msg), nil
}

func (s *liveSession) Close() error {
	return s.sess.Close()
}

func translateServerMessage(msg *genai.LiveServerMessage) *ServerEvent {
	event := &ServerEvent{}
	if msg == nil || msg.ServerContent == nil {
		return event
	}
	sc := msg.ServerContent
	event.TurnComplete = sc.TurnComplete
	event.Interrupted = sc.Interrupted

	var text strings.Builder
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				event.Audio = append(event.Audio, AudioPayload{
					MediaType: part.InlineData.MIMEType,
					Data:      part.InlineData.Data,
				})
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		text.WriteString(sc.OutputTranscription.Text)
	}
	event.Text = text.String()
	return event
}
