package livevoice

import "sync"

// TurnState tracks where the current exchange is within a turn.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnOpen
	TurnReceiving
	TurnComplete
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnOpen:
		return "open"
	case TurnReceiving:
		return "receiving"
	case TurnComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// turnTracker is shared by the send and receive pumps of one exchange.
// Transitions: Idle -> Open (client sends), Open/Idle -> Receiving (first
// fragment), Receiving/Open -> Complete (turnComplete), Complete -> Idle.
//
// Complete -> Idle is taken lazily: Open, OpenOrContinue and Fragment treat
// Complete as Idle and move straight on, while a second turnComplete on a
// Complete turn is ignored even in implicit mode. Abandon resets to Idle.
type turnTracker struct {
	mu    sync.Mutex
	state TurnState
	// implicit lets the peer start a turn without the client opening one.
	implicit bool
}

func newTurnTracker(implicit bool) *turnTracker {
	return &turnTracker{implicit: implicit}
}

func (t *turnTracker) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Open starts a client turn. Opening while a turn is already in progress is a
// protocol violation.
func (t *turnTracker) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case TurnIdle, TurnComplete:
		t.state = TurnOpen
		return nil
	default:
		return ErrTurnInProgress
	}
}

// OpenOrContinue starts a client turn or continues the one in progress.
// Streamed audio uses this: every chunk belongs to the same turn.
func (t *turnTracker) OpenOrContinue() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TurnIdle || t.state == TurnComplete {
		t.state = TurnOpen
	}
}

// Fragment records an inbound content fragment. It reports false when the
// fragment arrived outside any turn and must be dropped.
func (t *turnTracker) Fragment() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case TurnOpen, TurnReceiving:
		t.state = TurnReceiving
		return true
	default:
		if !t.implicit {
			return false
		}
		t.state = TurnReceiving
		return true
	}
}

// Complete marks the turn complete. It reports true at most once per turn.
func (t *turnTracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case TurnOpen, TurnReceiving:
		t.state = TurnComplete
		return true
	case TurnIdle:
		if t.implicit {
			t.state = TurnComplete
			return true
		}
	}
	return false
}

// Abandon drops any turn in progress.
func (t *turnTracker) Abandon() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = TurnIdle
}
