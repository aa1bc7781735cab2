package livevoice

import (
	"sync"
	"time"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one recorded turn.
type TranscriptEntry struct {
	Role Role
	Text string
	At   time.Time
}

// Transcript is an append-only conversation log owned by a Streamer. The
// send pump records user text turns and the receive pump records the
// assistant's text once a turn completes; readers get snapshots.
type Transcript struct {
	mu      sync.RWMutex
	entries []TranscriptEntry
	now     func() time.Time
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// Append records an entry. Empty text is ignored.
func (t *Transcript) Append(role Role, text string) {
	if t == nil || text == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TranscriptEntry{Role: role, Text: text, At: t.now()})
}

// Entries returns a copy of all entries, oldest first.
func (t *Transcript) Entries() []TranscriptEntry {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]TranscriptEntry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
