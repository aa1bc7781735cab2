package livevoice

import (
	"context"
	"fmt"
)

// EventKind identifies what an Event carries.
type EventKind int

const (
	// EventTextFragment carries incremental text produced by the service.
	EventTextFragment EventKind = iota + 1
	// EventAudioFragment carries incremental audio produced by the service.
	EventAudioFragment
	// EventTurnComplete marks the end of the service's turn.
	EventTurnComplete
	// EventError reports a non-fatal problem (a bad frame) or, when it is the
	// last event before EventClosed, the reason the stream ended.
	EventError
	// EventClosed is always the final event of a stream.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventTextFragment:
		return "text_fragment"
	case EventAudioFragment:
		return "audio_fragment"
	case EventTurnComplete:
		return "turn_complete"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one item on a stream's ordered event channel.
type Event struct {
	Kind EventKind

	Text     string // EventTextFragment
	Audio    []byte // EventAudioFragment
	MimeType string // EventAudioFragment, when the peer supplied one

	// Err is set on EventError, and on EventClosed when the stream did not end
	// cleanly. ErrKind classifies it.
	Err     error
	ErrKind ErrorKind
}

func textEvent(s string) Event { return Event{Kind: EventTextFragment, Text: s} }

func audioEvent(data []byte, mime string) Event {
	return Event{Kind: EventAudioFragment, Audio: data, MimeType: mime}
}

func errorEvent(err error) Event {
	return Event{Kind: EventError, Err: err, ErrKind: ErrorKindOf(err)}
}

func closedEvent(err error) Event {
	return Event{Kind: EventClosed, Err: err, ErrKind: ErrorKindOf(err)}
}

// Handlers are optional callbacks used by Dispatch. A nil field ignores that
// event kind.
type Handlers struct {
	OnText         func(text string)
	OnAudio        func(audio []byte, mimeType string)
	OnTurnComplete func()
	OnError        func(kind ErrorKind, err error)
	OnClosed       func(err error)
}

// Dispatch reads s's events on the calling goroutine and invokes the matching
// handler for each, in order. It returns the stream's terminal error once the
// event channel is closed. If ctx is done first the stream is closed and
// ErrCancelled is returned.
func Dispatch(ctx context.Context, s *Stream, h Handlers) error {
	for {
		select {
		case <-ctx.Done():
			return s.Close()
		case ev, ok := <-s.Events():
			if !ok {
				return s.Err()
			}
			h.dispatch(ev)
		}
	}
}

func (h Handlers) dispatch(ev Event) {
	switch ev.Kind {
	case EventTextFragment:
		if h.OnText != nil {
			h.OnText(ev.Text)
		}
	case EventAudioFragment:
		if h.OnAudio != nil {
			h.OnAudio(ev.Audio, ev.MimeType)
		}
	case EventTurnComplete:
		if h.OnTurnComplete != nil {
			h.OnTurnComplete()
		}
	case EventError:
		if h.OnError != nil {
			h.OnError(ev.ErrKind, ev.Err)
		}
	case EventClosed:
		if h.OnClosed != nil {
			h.OnClosed(ev.Err)
		}
	}
}
