package livevoice

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"nhooyr.io/websocket"
)

// Transport is a duplex, message-oriented channel carrying one protocol
// message per frame. Read returns io.EOF once the peer has closed the channel
// normally. Implementations need not support concurrent writers; Conn
// serializes all writes.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// pinger is implemented by transports with a keepalive primitive. Ping must be
// safe to call concurrently with Write.
type pinger interface {
	Ping(ctx context.Context) error
}

// Dialer establishes a Transport to endpoint, presenting header during the
// handshake.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, header http.Header) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint string, header http.Header) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, endpoint string, header http.Header) (Transport, error) {
	return f(ctx, endpoint, header)
}

// HandshakeError is returned by dialers when the peer answered the handshake
// with a non-upgrade HTTP status.
type HandshakeError struct {
	StatusCode int
	Cause      error
}

func (e *HandshakeError) Error() string {
	return "handshake rejected: " + http.StatusText(e.StatusCode) + ": " + e.Cause.Error()
}

// Unwrap returns the underlying error.
func (e *HandshakeError) Unwrap() error { return e.Cause }

// WebSocketDialer dials WebSocket transports.
type WebSocketDialer struct {
	// HTTPClient is used for the upgrade request. Default http.DefaultClient.
	HTTPClient *http.Client

	// ReadLimit caps one inbound message. Default DefaultReadLimit.
	ReadLimit int64
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string, header http.Header) (Transport, error) {
	u, err := websocketURL(endpoint)
	if err != nil {
		return nil, err
	}
	ws, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Cause: err}
		}
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	ws.SetReadLimit(limit)
	return &wsTransport{conn: ws}, nil
}

// websocketURL maps http(s) endpoints onto ws(s).
func websocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String(), nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	// Text and binary frames both carry JSON; peers differ in which they use.
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, frame)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close() error {
	err := t.conn.Close(websocket.StatusNormalClosure, "closing")
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}
