package talk

import "strings"

// audioMediaPrefix selects which inbound payloads count as playable audio.
const audioMediaPrefix = "audio/pcm"

// AudioPayload is one audio-bearing part of an inbound server event.
type AudioPayload struct {
	MediaType string
	Data      []byte
}

// ServerEvent is the session-agnostic shape of one inbound event. Events
// that carry none of these fields are ignored by the ingress flow.
type ServerEvent struct {
	// Audio payloads in wire order.
	Audio []AudioPayload
	// Text is incremental agent text or transcription, when present.
	Text string
	// TurnComplete signals the end of the agent's turn.
	TurnComplete bool
	// Interrupted signals the agent abandoned its in-flight response
	// (barge-in); buffered playback for it should be discarded.
	Interrupted bool
}

func (e *ServerEvent) playableAudio() []AudioPayload {
	if e == nil || len(e.Audio) == 0 {
		return nil
	}
	out := e.Audio[:0:0]
	for _, p := range e.Audio {
		if len(p.Data) == 0 {
			continue
		}
		if strings.HasPrefix(p.MediaType, audioMediaPrefix) {
			out = append(out, p)
		}
	}
	return out
}

// Session is the narrow surface the core needs from the remote
// conversational session. Implementations live behind Connect; tests use
// in-memory fakes. Send methods are independently fallible; Receive
// blocks until the next event or a terminal error.
type Session interface {
	SendTurnStart() error
	SendTurnEnd() error
	SendAudio(pcm []byte) error
	Receive() (*ServerEvent, error)
	Close() error
}
