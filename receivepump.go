package livevoice

import (
	"context"
	"errors"
	"io"
	"strings"
)

// maxDecodeFailures is the number of consecutive undecodable frames that
// ends a receive pump with a *ProtocolDesyncError.
const maxDecodeFailures = 3

// receivePump reads, decodes and dispatches inbound frames for one exchange.
type receivePump struct {
	conn       *Conn
	turns      *turnTracker
	transcript *Transcript
	log        *Logger
	metrics    *Metrics

	// bounded pumps return after the first completed turn and drop content
	// that arrives outside a turn the client opened.
	bounded bool

	// emit delivers an event in order. It reports false once the consumer
	// side has gone away.
	emit func(Event) bool

	failures int
	text     strings.Builder
}

// run loops until the peer closes (nil), a bounded turn completes (nil,
// completed=true), the receive fails, or ctx is done.
func (p *receivePump) run(ctx context.Context) (completed bool, err error) {
	for {
		raw, err := p.conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}

		env, err := Decode(raw)
		if err != nil {
			if fatal := p.decodeFailed(err); fatal != nil {
				return false, fatal
			}
			if !p.emit(errorEvent(err)) {
				return false, context.Canceled
			}
			continue
		}
		p.failures = 0

		done, ok := p.dispatch(env)
		if !ok {
			return false, context.Canceled
		}
		if done && p.bounded {
			return true, nil
		}
	}
}

// decodeFailed counts a failure and returns the desync error once the limit
// is reached.
func (p *receivePump) decodeFailed(err error) error {
	p.failures++
	p.metrics.decodeError()
	de := &DecodeError{Cause: err}
	errors.As(err, &de)
	p.log.Warn("frame_decode_failed", map[string]any{
		"err":         err,
		"consecutive": p.failures,
		"raw":         truncate(de.Raw, 256),
	})
	if p.failures < maxDecodeFailures {
		return nil
	}
	p.metrics.desync()
	return &ProtocolDesyncError{Failures: p.failures, Last: de}
}

// dispatch emits the events carried by env. done reports a completed turn;
// ok is false if the consumer went away.
func (p *receivePump) dispatch(env Envelope) (done, ok bool) {
	sc := env.ServerContent
	if sc == nil {
		p.log.Debug("frame_ignored", map[string]any{"kind": env.Kind()})
		return false, true
	}

	if sc.ModelTurn != nil && len(sc.ModelTurn.Parts) > 0 {
		if !p.turns.Fragment() {
			p.log.Warn("fragment_outside_turn", map[string]any{"turn_state": p.turns.State().String()})
			return false, true
		}
		for _, part := range sc.ModelTurn.Parts {
			if part.Text != nil {
				p.text.WriteString(*part.Text)
				if !p.emit(textEvent(*part.Text)) {
					return false, false
				}
			}
			if part.InlineData != nil {
				if !p.emit(audioEvent(part.InlineData.Data, part.InlineData.MimeType)) {
					return false, false
				}
			}
		}
	}

	if !sc.TurnComplete {
		return false, true
	}
	if !p.turns.Complete() {
		p.log.Debug("turn_complete_ignored", map[string]any{"turn_state": p.turns.State().String()})
		return false, true
	}
	p.metrics.turnCompleted()
	p.transcript.Append(RoleAssistant, p.text.String())
	p.text.Reset()
	return true, p.emit(Event{Kind: EventTurnComplete})
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
