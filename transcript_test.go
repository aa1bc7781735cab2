package livevoice

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tr := NewTranscript()
	tr.now = func() time.Time { return at }

	tr.Append(RoleUser, "hello")
	tr.Append(RoleAssistant, "")
	tr.Append(RoleAssistant, "Hi there")

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, TranscriptEntry{Role: RoleUser, Text: "hello", At: at}, entries[0])
	assert.Equal(t, TranscriptEntry{Role: RoleAssistant, Text: "Hi there", At: at}, entries[1])

	entries[0].Text = "changed"
	assert.Equal(t, "hello", tr.Entries()[0].Text, "Entries returns a snapshot")
}

func TestTranscript_Nil(t *testing.T) {
	var tr *Transcript
	assert.NotPanics(t, func() { tr.Append(RoleUser, "x") })
	assert.Nil(t, tr.Entries())
	assert.Zero(t, tr.Len())
}

func TestTranscript_ConcurrentAppend(t *testing.T) {
	tr := NewTranscript()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				tr.Append(RoleUser, fmt.Sprintf("%d-%d", i, j))
				_ = tr.Len()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, tr.Len())
}
