package livevoice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ConnState is the lifecycle state of a Conn.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Conn owns one persistent duplex transport to the streaming service.
//
// Send may be called from several goroutines; writes are serialized so that at
// most one frame is in flight at any instant. Receive is meant to be called by
// a single reader. Close releases the transport exactly once, whichever path
// triggers it.
type Conn struct {
	id      string
	cfg     Config
	log     *Logger
	metrics *Metrics

	state     atomic.Int32
	transport Transport

	writeMu   sync.Mutex // serializes data writes on transport
	closeOnce sync.Once
	closedCh  chan struct{}
}

// Open establishes a connection using cfg.Endpoint and cfg.Credential.
//
// Open fails with *ConfigError for an invalid configuration and *ConnectError
// for a rejected credential, a network or handshake failure, a handshake that
// exceeds cfg.HandshakeTimeout, or a failed session setup. On every failure
// path any transport that was established is released before returning.
func Open(ctx context.Context, cfg Config) (*Conn, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.applyDefaults()

	c := &Conn{
		id:       uuid.NewString(),
		cfg:      cfg,
		metrics:  cfg.Metrics,
		closedCh: make(chan struct{}),
	}
	c.log = cfg.Logger.WithContext(map[string]any{"conn_id": c.id})
	c.state.Store(int32(StateConnecting))

	err := c.open(ctx)
	c.metrics.connectAttempt(err)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.log.Error("connect_failed", map[string]any{"err": err})
		return nil, err
	}
	c.state.Store(int32(StateConnected))
	c.log.Info("connected", map[string]any{"endpoint": cfg.Endpoint})
	return c, nil
}

func (c *Conn) open(ctx context.Context) (err error) {
	if chk, ok := c.cfg.Credential.(credentialChecker); ok {
		if err := chk.check(c.cfg.now()); err != nil {
			return NewConnectError(c.cfg.Endpoint, "credential", err)
		}
	}

	hsCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	t, err := c.cfg.Dialer.Dial(hsCtx, c.cfg.Endpoint, c.cfg.handshakeHeader())
	if err != nil {
		ce := NewConnectError(c.cfg.Endpoint, "dial", err)
		var hs *HandshakeError
		if errors.As(err, &hs) {
			ce.Operation = "handshake"
			ce.StatusCode = hs.StatusCode
		}
		return ce
	}
	defer func() {
		if err != nil {
			_ = t.Close()
		}
	}()

	if c.cfg.Model != "" {
		if err := setupSession(hsCtx, t, c.cfg); err != nil {
			return NewConnectError(c.cfg.Endpoint, "setup", err)
		}
	}
	c.transport = t
	return nil
}

// setupSession sends the setup message and waits for its acknowledgement.
func setupSession(ctx context.Context, t Transport, cfg Config) error {
	frame, err := encodeSetup(cfg.Model, cfg.ResponseModalities)
	if err != nil {
		return err
	}
	if err := t.Write(ctx, frame); err != nil {
		return fmt.Errorf("write setup: %w", err)
	}
	raw, err := t.Read(ctx)
	if err != nil {
		return fmt.Errorf("read setup response: %w", err)
	}
	env, err := Decode(raw)
	if err != nil {
		return err
	}
	if env.SetupComplete == nil {
		return fmt.Errorf("expected setupComplete, got %s", env.Kind())
	}
	return nil
}

// ID returns the connection's log identifier.
func (c *Conn) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }

// Done is closed once the connection has been released.
func (c *Conn) Done() <-chan struct{} { return c.closedCh }

// Send writes one frame. Concurrent callers never interleave partial writes.
// A transport write failure is unrecoverable and releases the connection.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	return c.SendKind(ctx, frameKind(frame), frame)
}

// SendKind is Send for callers that already know the frame's envelope kind,
// which labels the frame in logs and metrics.
func (c *Conn) SendKind(ctx context.Context, kind string, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() != StateConnected {
		return NewSendError(kind, ErrNotConnected)
	}

	wctx := ctx
	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}

	if err := c.transport.Write(wctx, frame); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = ErrSendTimeout
		}
		_ = c.Close()
		return NewSendError(kind, err)
	}
	c.metrics.frameSent(kind, len(frame))
	c.log.Debug("frame_sent", map[string]any{"kind": kind, "bytes": len(frame)})
	return nil
}

// Receive blocks until one inbound frame is available. It returns io.EOF when
// the peer closed the connection normally and *ReceiveError for any other
// transport failure, after which the connection is released.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	switch c.State() {
	case StateConnected:
	case StateClosing, StateDisconnected:
		return nil, &ReceiveError{Cause: ErrClosed}
	default:
		return nil, &ReceiveError{Cause: ErrNotConnected}
	}

	data, err := c.transport.Read(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.log.Info("peer_closed", nil)
			_ = c.Close()
			return nil, io.EOF
		}
		if ctx.Err() != nil {
			_ = c.Close()
			return nil, ctx.Err()
		}
		select {
		case <-c.closedCh:
			return nil, &ReceiveError{Cause: ErrClosed}
		default:
		}
		_ = c.Close()
		return nil, &ReceiveError{Cause: err}
	}
	c.metrics.frameReceived()
	return data, nil
}

// Ping sends a keepalive if the transport supports one and waits for the
// answer. It does not take the write lock: sends proceed while a ping is
// outstanding.
func (c *Conn) Ping(ctx context.Context) error {
	p, ok := c.transport.(pinger)
	if !ok {
		return nil
	}
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return p.Ping(ctx)
}

// keepalive pings every interval until ctx is done or the connection closes.
func (c *Conn) keepalive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedCh:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, interval/2)
			err := c.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				// An unanswered ping means the peer is gone.
				c.log.Warn("ping_failed", map[string]any{"err": err})
				_ = c.Close()
				return
			}
		}
	}
}

// Close releases the transport. It is safe to call multiple times and from
// any goroutine; only the first call does any work.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		close(c.closedCh)
		if c.transport != nil {
			if err := c.transport.Close(); err != nil {
				c.log.Debug("transport_close", map[string]any{"err": err})
			}
		}
		c.state.Store(int32(StateDisconnected))
		c.log.Info("disconnected", nil)
	})
	return nil
}

// frameKind peeks at an encoded envelope for logging and metrics.
func frameKind(frame []byte) string {
	env, err := Decode(frame)
	if err != nil {
		return "unknown"
	}
	return env.Kind()
}
