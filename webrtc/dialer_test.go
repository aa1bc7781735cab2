package webrtc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enesunal-m/livevoice"
)

func loopbackEngine() *pion.SettingEngine {
	se := &pion.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	return se
}

// answerer is an in-process peer that answers SDP offers and echoes every
// data channel message back to the client.
type answerer struct {
	t *testing.T

	mu      sync.Mutex
	headers []http.Header
	pcs     []*pion.PeerConnection
}

func newAnswerer(t *testing.T) (*answerer, *httptest.Server) {
	a := &answerer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(a.handle))
	t.Cleanup(func() {
		srv.Close()
		a.mu.Lock()
		defer a.mu.Unlock()
		for _, pc := range a.pcs {
			_ = pc.Close()
		}
	})
	return a, srv
}

func (a *answerer) handle(w http.ResponseWriter, r *http.Request) {
	offer, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.mu.Lock()
	a.headers = append(a.headers, r.Header.Clone())
	a.mu.Unlock()

	pc, err := pion.NewAPI(pion.WithSettingEngine(*loopbackEngine())).NewPeerConnection(pion.Configuration{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.mu.Lock()
	a.pcs = append(a.pcs, pc)
	a.mu.Unlock()

	pc.OnDataChannel(func(dc *pion.DataChannel) {
		dc.OnMessage(func(m pion.DataChannelMessage) {
			_ = dc.SendText(`{"echo":` + string(m.Data) + `}`)
		})
	})

	if err := pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: string(offer)}); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	gathered := pion.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	<-gathered

	w.Header().Set("Content-Type", "application/sdp")
	_, _ = io.WriteString(w, pc.LocalDescription().SDP)
}

func TestDialer_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("negotiates a real peer connection")
	}
	a, srv := newAnswerer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	h := http.Header{}
	h.Set("x-goog-api-key", "k")
	d := &Dialer{SettingEngine: loopbackEngine()}
	tr, err := d.Dial(ctx, srv.URL, h)
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.Write(ctx, []byte(`{"n":1}`)))
	require.NoError(t, tr.Write(ctx, []byte(`{"n":2}`)))

	for _, want := range []string{`{"echo":{"n":1}}`, `{"echo":{"n":2}}`} {
		got, err := tr.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	a.mu.Lock()
	require.Len(t, a.headers, 1)
	assert.Equal(t, "k", a.headers[0].Get("x-goog-api-key"))
	assert.Equal(t, "application/sdp", a.headers[0].Get("Content-Type"))
	a.mu.Unlock()

	require.NoError(t, tr.Close())
	_, err = tr.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, tr.Write(ctx, []byte(`{}`)), io.ErrClosedPipe)
}

func TestDialer_ThroughConn(t *testing.T) {
	if testing.Short() {
		t.Skip("negotiates a real peer connection")
	}
	_, srv := newAnswerer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := livevoice.Open(ctx, livevoice.Config{
		Endpoint:   srv.URL,
		Credential: livevoice.APIKey("k"),
		Dialer:     &Dialer{SettingEngine: loopbackEngine()},
		Logger:     livevoice.NewLogger(livevoice.LogLevelOff),
	})
	require.NoError(t, err)
	defer conn.Close()

	frame, err := livevoice.EncodeTextTurn("hi", true)
	require.NoError(t, err)
	require.NoError(t, conn.Send(ctx, frame))

	got, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":`+string(frame)+`}`, string(got))
}

func TestDialer_Rejected(t *testing.T) {
	if testing.Short() {
		t.Skip("gathers local candidates")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := (&Dialer{SettingEngine: loopbackEngine()}).Dial(ctx, srv.URL, http.Header{})
	var he *livevoice.HandshakeError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
	assert.Contains(t, he.Error(), "bad key")
}

func TestDialer_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Dialer{SettingEngine: loopbackEngine()}).Dial(ctx, "http://127.0.0.1:1/", http.Header{})
	assert.Error(t, err)
}
