// Package webrtc carries livevoice envelopes over a WebRTC data channel
// instead of a WebSocket. The SDP offer is POSTed to the endpoint together
// with the handshake headers and the response body is the SDP answer.
package webrtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v3"

	"github.com/enesunal-m/livevoice"
)

// DataChannelLabel is the label of the channel the envelopes travel on.
const DataChannelLabel = "livevoice"

// Dialer implements livevoice.Dialer over a WebRTC data channel.
type Dialer struct {
	// ICEServers are passed to the peer connection.
	ICEServers []pion.ICEServer

	// HTTPClient posts the offer. Default has a 20s timeout.
	HTTPClient *http.Client

	// SettingEngine customizes the pion API, e.g. to allow loopback
	// candidates in tests. Optional.
	SettingEngine *pion.SettingEngine

	// InboundBuffer is the number of messages held before the data channel
	// applies backpressure. Default 256.
	InboundBuffer int
}

var _ livevoice.Dialer = (*Dialer)(nil)

// Dial negotiates a peer connection with endpoint and waits for the data
// channel to open.
func (d *Dialer) Dial(ctx context.Context, endpoint string, header http.Header) (livevoice.Transport, error) {
	var opts []func(*pion.API)
	if d.SettingEngine != nil {
		opts = append(opts, pion.WithSettingEngine(*d.SettingEngine))
	}
	api := pion.NewAPI(opts...)

	pc, err := api.NewPeerConnection(pion.Configuration{ICEServers: d.ICEServers})
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = pc.Close()
		}
	}()

	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return nil, err
	}
	t := newTransport(pc, dc, d.InboundBuffer)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gathered := pion.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	answer, err := d.exchange(ctx, endpoint, header, pc.LocalDescription().SDP)
	if err != nil {
		return nil, err
	}
	if err := pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer}); err != nil {
		return nil, err
	}

	select {
	case <-t.opened:
	case <-t.closed:
		return nil, errors.New("data channel closed before opening")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	ok = true
	return t, nil
}

// exchange posts the offer and returns the answer SDP.
func (d *Dialer) exchange(ctx context.Context, endpoint string, header http.Header, sdp string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(sdp))
	if err != nil {
		return "", err
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/sdp")

	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", &livevoice.HandshakeError{
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("SDP exchange failed: %s", bytes.TrimSpace(b)),
		}
	}
	return string(b), nil
}

// transport adapts a data channel to livevoice.Transport.
type transport struct {
	pc *pion.PeerConnection
	dc *pion.DataChannel

	in        chan []byte
	opened    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newTransport(pc *pion.PeerConnection, dc *pion.DataChannel, buffer int) *transport {
	if buffer <= 0 {
		buffer = 256
	}
	t := &transport{
		pc:     pc,
		dc:     dc,
		in:     make(chan []byte, buffer),
		opened: make(chan struct{}),
		closed: make(chan struct{}),
	}
	dc.OnOpen(func() { close(t.opened) })
	dc.OnClose(t.markClosed)
	dc.OnMessage(func(m pion.DataChannelMessage) {
		select {
		case t.in <- m.Data:
		case <-t.closed:
		}
	})
	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		if s == pion.PeerConnectionStateFailed || s == pion.PeerConnectionStateClosed {
			t.markClosed()
		}
	})
	return t
}

func (t *transport) markClosed() {
	t.closeOnce.Do(func() { close(t.closed) })
}

func (t *transport) Read(ctx context.Context) ([]byte, error) {
	// Buffered messages are delivered before the close is reported.
	select {
	case m := <-t.in:
		return m, nil
	default:
	}
	select {
	case m := <-t.in:
		return m, nil
	case <-t.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *transport) Write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}
	return t.dc.SendText(string(frame))
}

func (t *transport) Close() error {
	t.markClosed()
	return t.pc.Close()
}
