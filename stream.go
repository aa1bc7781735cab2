package livevoice

import (
	"context"
	"sync"
)

// Stream is one running exchange. Events arrive on a single ordered channel
// that is closed after the final EventClosed.
//
// The consumer must either read Events until it is closed or call Close;
// a stream whose events are never read holds its goroutines.
type Stream struct {
	id     string
	events chan Event
	cancel context.CancelFunc

	closeOnce sync.Once
	closeReq  chan struct{}

	done chan struct{}
	err  error // written once before done is closed
}

func newStream(id string, buffer int, cancel context.CancelFunc) *Stream {
	return &Stream{
		id:       id,
		events:   make(chan Event, buffer),
		cancel:   cancel,
		closeReq: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the stream's log identifier.
func (s *Stream) ID() string { return s.id }

// Events returns the ordered event channel.
func (s *Stream) Events() <-chan Event { return s.events }

// Done is closed once the exchange has ended and its resources are released.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the terminal error once Done is closed, and nil before that.
// A clean end (turn complete, drained, or peer closed) is nil.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the stream ends or ctx is done, and returns the terminal
// error. It does not consume events.
func (s *Stream) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the exchange if it is still running, waits for both pumps to
// stop and returns the terminal error: ErrCancelled if the stream was still
// active. Pending events are discarded.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeReq)
		s.cancel()
	})
	<-s.done
	return s.err
}

// emit delivers ev unless ctx is done first.
func (s *Stream) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish publishes the terminal events and closes the channel. Delivery stops
// early only if the consumer called Close.
func (s *Stream) finish(err error) {
	s.err = err
	close(s.done)

	final := []Event{closedEvent(err)}
	if err != nil && ErrorKindOf(err) != ErrorKindCancelled {
		final = append([]Event{errorEvent(err)}, final...)
	}
	for _, ev := range final {
		select {
		case s.events <- ev:
		case <-s.closeReq:
			close(s.events)
			return
		}
	}
	close(s.events)
}
