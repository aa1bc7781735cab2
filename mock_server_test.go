package livevoice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nhooyr.io/websocket"
)

// MockPeer is a WebSocket test server that speaks the streaming protocol.
// Respond is called for every client frame (after setup) and returns the
// frames to send back.
type MockPeer struct {
	server *httptest.Server
	t      *testing.T

	// RejectStatus, when set, refuses the upgrade with this status.
	RejectStatus int
	// Initial frames are sent right after the upgrade (and setup).
	Initial [][]byte
	// Respond maps a client frame to the peer's replies.
	Respond func(env Envelope) [][]byte
	// SkipSetupAck leaves a setup message unanswered.
	SkipSetupAck bool

	mu       sync.Mutex
	received [][]byte
	headers  []http.Header
}

// NewMockPeer starts a mock peer. It is shut down with t.Cleanup.
func NewMockPeer(t *testing.T) *MockPeer {
	mp := &MockPeer{t: t}
	mp.server = httptest.NewServer(http.HandlerFunc(mp.handleWebSocket))
	t.Cleanup(mp.server.Close)
	return mp
}

// URL returns the WebSocket URL for the mock peer.
func (mp *MockPeer) URL() string {
	return "ws" + strings.TrimPrefix(mp.server.URL, "http") + "/ws/live"
}

// Config returns a valid config pointing at the peer.
func (mp *MockPeer) Config() Config {
	return Config{
		Endpoint:   mp.URL(),
		Credential: APIKey("test-key"),
		Logger:     NewLogger(LogLevelOff),
	}
}

// Received returns a copy of every frame the peer has read.
func (mp *MockPeer) Received() [][]byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([][]byte(nil), mp.received...)
}

// Headers returns the handshake headers of every accepted connection.
func (mp *MockPeer) Headers() []http.Header {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]http.Header(nil), mp.headers...)
}

func (mp *MockPeer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-goog-api-key") == "" && r.Header.Get("Authorization") == "" {
		http.Error(w, "Missing authentication", http.StatusUnauthorized)
		return
	}
	if mp.RejectStatus != 0 {
		http.Error(w, "rejected", mp.RejectStatus)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // For testing only
	})
	if err != nil {
		mp.t.Errorf("failed to upgrade to websocket: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	mp.mu.Lock()
	mp.headers = append(mp.headers, r.Header.Clone())
	mp.mu.Unlock()

	ctx := r.Context()
	for _, f := range mp.Initial {
		if err := conn.Write(ctx, websocket.MessageText, f); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return // Connection closed
		}
		mp.mu.Lock()
		mp.received = append(mp.received, data)
		mp.mu.Unlock()

		env, err := Decode(data)
		if err != nil {
			continue
		}
		if env.Setup != nil {
			if !mp.SkipSetupAck {
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"setupComplete":{}}`))
			}
			continue
		}
		if mp.Respond == nil {
			continue
		}
		for _, f := range mp.Respond(env) {
			if err := conn.Write(ctx, websocket.MessageText, f); err != nil {
				return
			}
		}
	}
}

// serverText builds a serverContent frame carrying one text part.
func serverText(text string, complete bool) []byte {
	return mustJSON(Envelope{ServerContent: &ServerContent{
		ModelTurn:    &ModelTurn{Parts: []Part{{Text: &text}}},
		TurnComplete: complete,
	}})
}

// serverAudio builds a serverContent frame carrying one inline audio part.
func serverAudio(data []byte, complete bool) []byte {
	return mustJSON(Envelope{ServerContent: &ServerContent{
		ModelTurn:    &ModelTurn{Parts: []Part{{InlineData: &InlineData{MimeType: "audio/pcm;rate=24000", Data: data}}}},
		TurnComplete: complete,
	}})
}

// serverTurnComplete builds a bare turnComplete frame.
func serverTurnComplete() []byte {
	return []byte(`{"serverContent":{"turnComplete":true}}`)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// collect drains a stream's events until the channel closes.
func collect(t *testing.T, ctx context.Context, s *Stream) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-ctx.Done():
			t.Fatalf("stream did not finish: %v (events so far: %v)", ctx.Err(), kinds(out))
			return nil
		}
	}
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}
