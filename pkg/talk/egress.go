package talk

import (
	"context"
	"log/slog"
	"sync"
)

type outboundKind int

const (
	outboundTurnStart outboundKind = iota
	outboundTurnEnd
	outboundAudio
)

func (k outboundKind) String() string {
	switch k {
	case outboundTurnStart:
		return "turn_start"
	case outboundTurnEnd:
		return "turn_end"
	default:
		return "audio"
	}
}

type outboundItem struct {
	kind   outboundKind
	pcm    []byte
	turnID string
}

// Egress serializes all outbound traffic — turn boundaries and audio
// chunks — through one queue drained by one goroutine, so submission
// order is exactly wire order. A failed send is logged and skipped: one
// lost chunk beats a dead conversation.
type Egress struct {
	session Session
	logger  *slog.Logger

	queue chan outboundItem

	done     chan struct{}
	stopOnce sync.Once
}

func NewEgress(session Session, logger *slog.Logger) *Egress {
	if logger == nil {
		logger = slog.Default()
	}
	return &Egress{
		session: session,
		logger:  logger,
		queue:   make(chan outboundItem, 8),
		done:    make(chan struct{}),
	}
}

// Run drains the queue until ctx is canceled. It never returns an error:
// outbound failures are transient by contract. On cancellation the items
// already queued are flushed best-effort, so a turn-end submitted just
// before shutdown still reaches the wire.
func (e *Egress) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			e.flush()
			return
		case item := <-e.queue:
			e.send(item)
		}
	}
}

func (e *Egress) flush() {
	for {
		select {
		case item := <-e.queue:
			e.send(item)
		default:
			return
		}
	}
}

func (e *Egress) send(item outboundItem) {
	var err error
	switch item.kind {
	case outboundTurnStart:
		err = e.session.SendTurnStart()
	case outboundTurnEnd:
		err = e.session.SendTurnEnd()
	case outboundAudio:
		err = e.session.SendAudio(item.pcm)
	}
	if err != nil {
		e.logger.Warn("outbound send failed", "kind", item.kind, "turn", item.turnID, "err", err)
	}
}

// Done closes when the sender goroutine has exited.
func (e *Egress) Done() <-chan struct{} { return e.done }

func (e *Egress) push(ctx context.Context, item outboundItem) error {
	// Never accept an item the stopped sender would silently strand.
	select {
	case <-e.done:
		return context.Canceled
	default:
	}
	select {
	case e.queue <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return context.Canceled
	}
}

// TurnStart queues a turn-start boundary. Callers queue this before the
// capture source emits, which is all the ordering guarantee requires.
func (e *Egress) TurnStart(ctx context.Context, turnID string) error {
	return e.push(ctx, outboundItem{kind: outboundTurnStart, turnID: turnID})
}

// TurnEnd queues a turn-end boundary. Callers queue this after the
// capture source has fully stopped, so it follows the turn's last chunk.
func (e *Egress) TurnEnd(ctx context.Context, turnID string) error {
	return e.push(ctx, outboundItem{kind: outboundTurnEnd, turnID: turnID})
}

// Audio queues one captured chunk; shaped to plug into the capture
// source's emit hook.
func (e *Egress) Audio(ctx context.Context, pcm []byte) error {
	return e.push(ctx, outboundItem{kind: outboundAudio, pcm: pcm})
}
