package livevoice

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pipeTransport is an in-memory Transport whose far end is driven by the
// test through pipePeer.
type pipeTransport struct {
	toClient   chan []byte
	fromClient chan []byte

	closed     chan struct{}
	closeOnce  sync.Once
	peerClosed chan struct{}
	hangOnce   sync.Once

	writeErr  atomic.Pointer[error]
	inFlight  atomic.Int32
	overlaps  atomic.Int32
	pings     atomic.Int32
	closeHits atomic.Int32

	// pongless makes Ping wait until its context ends, like a peer that
	// never answers.
	pongless atomic.Bool
}

func newPipe() *pipeTransport {
	return &pipeTransport{
		toClient:   make(chan []byte, 64),
		fromClient: make(chan []byte, 64),
		closed:     make(chan struct{}),
		peerClosed: make(chan struct{}),
	}
}

func (p *pipeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-p.toClient:
		return f, nil
	default:
	}
	select {
	case f := <-p.toClient:
		return f, nil
	case <-p.peerClosed:
		return nil, io.EOF
	case <-p.closed:
		return nil, errors.New("pipe closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Write(ctx context.Context, frame []byte) error {
	if p.inFlight.Add(1) > 1 {
		p.overlaps.Add(1)
	}
	defer p.inFlight.Add(-1)
	if e := p.writeErr.Load(); e != nil {
		return *e
	}
	f := append([]byte(nil), frame...)
	select {
	case p.fromClient <- f:
		return nil
	case <-p.closed:
		return errors.New("pipe closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeTransport) Ping(ctx context.Context) error {
	p.pings.Add(1)
	if !p.pongless.Load() {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *pipeTransport) Close() error {
	p.closeHits.Add(1)
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeTransport) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// failWrites makes every later Write return err.
func (p *pipeTransport) failWrites(err error) { p.writeErr.Store(&err) }

// send delivers a frame to the client.
func (p *pipeTransport) send(frame []byte) { p.toClient <- frame }

// hangup closes the peer side normally.
func (p *pipeTransport) hangup() { p.hangOnce.Do(func() { close(p.peerClosed) }) }

// next returns the next frame the client wrote.
func (p *pipeTransport) next(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-p.fromClient:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return nil
	}
}

// pipeDialer hands out a fresh pipe per dial and remembers them.
type pipeDialer struct {
	mu      sync.Mutex
	pipes   []*pipeTransport
	headers []http.Header
	err     error
	ready   chan *pipeTransport
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{ready: make(chan *pipeTransport, 8)}
}

func (d *pipeDialer) Dial(ctx context.Context, endpoint string, header http.Header) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.headers = append(d.headers, header)
	if d.err != nil {
		return nil, d.err
	}
	p := newPipe()
	d.pipes = append(d.pipes, p)
	d.ready <- p
	return p, nil
}

func (d *pipeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipes)
}

// pipe waits for the next dialed pipe.
func (d *pipeDialer) pipe(t *testing.T) *pipeTransport {
	t.Helper()
	select {
	case p := <-d.ready:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no connection was dialed")
		return nil
	}
}

func pipeConfig(d Dialer) Config {
	return Config{
		Endpoint:   "wss://live.test/ws",
		Credential: APIKey("test-key"),
		Dialer:     d,
		Logger:     NewLogger(LogLevelOff),
	}
}
