package livevoice

import "context"

// TextTurn is one outbound text turn.
type TextTurn struct {
	Text string
	// TurnComplete tells the peer the client is done and it may answer.
	TurnComplete bool
}

// unit is an outbound item the send pump knows how to put on the wire.
type unit interface {
	AudioChunk | TextTurn
	encode() ([]byte, error)
	kind() string
	openTurn(t *turnTracker) error
}

func (c AudioChunk) encode() ([]byte, error) { return EncodeAudio(c) }

func (AudioChunk) kind() string { return "realtime_input" }

// openTurn continues the current turn; a stream of chunks is a single turn.
func (c AudioChunk) openTurn(t *turnTracker) error {
	t.OpenOrContinue()
	return nil
}

func (tt TextTurn) encode() ([]byte, error) { return EncodeTextTurn(tt.Text, tt.TurnComplete) }

func (TextTurn) kind() string { return "client_content" }

func (tt TextTurn) openTurn(t *turnTracker) error { return t.Open() }

// sendPump writes outbound units to one Conn for the duration of an exchange.
type sendPump struct {
	conn       *Conn
	turns      *turnTracker
	transcript *Transcript
	log        *Logger
	sent       int
}

// pumpUnits consumes in until it is closed, a send fails, or ctx is done,
// writing every unit in the order it was received. A closed input returns nil.
// The pump never retries: resending audio mid-turn is not meaningful.
func pumpUnits[U unit](ctx context.Context, p *sendPump, in <-chan U) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-in:
			if !ok {
				p.log.Debug("send_input_exhausted", map[string]any{"sent": p.sent})
				return nil
			}
			if err := sendUnit(ctx, p, u); err != nil {
				return err
			}
		}
	}
}

func sendUnit[U unit](ctx context.Context, p *sendPump, u U) error {
	frame, err := u.encode()
	if err != nil {
		return NewSendError(u.kind(), err)
	}
	if err := u.openTurn(p.turns); err != nil {
		return err
	}
	// The user entry goes in before the write so a fast reply cannot precede it.
	if tt, ok := any(u).(TextTurn); ok {
		p.transcript.Append(RoleUser, tt.Text)
	}
	if err := p.conn.SendKind(ctx, u.kind(), frame); err != nil {
		return err
	}
	p.sent++
	return nil
}

// single returns a closed channel holding exactly u.
func single[U any](u U) <-chan U {
	ch := make(chan U, 1)
	ch <- u
	close(ch)
	return ch
}
