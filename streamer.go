package livevoice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StreamerState is the lifecycle state of a Streamer.
type StreamerState int32

const (
	StreamerIdle StreamerState = iota
	StreamerConnecting
	StreamerStreaming
	StreamerDraining
	StreamerClosed
)

func (s StreamerState) String() string {
	switch s {
	case StreamerIdle:
		return "idle"
	case StreamerConnecting:
		return "connecting"
	case StreamerStreaming:
		return "streaming"
	case StreamerDraining:
		return "draining"
	case StreamerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Streamer runs exchanges over one lazily opened Conn. It offers three modes:
// Transcribe (audio in, text out), Speak (text in, audio out) and Converse
// (both directions until cancelled). Only one exchange runs at a time.
//
// A turn-bounded exchange that completes on a healthy connection leaves the
// Conn open for the next call. Any other ending releases it; the next call
// reconnects.
type Streamer struct {
	cfg        Config
	log        *Logger
	transcript *Transcript

	state atomic.Int32

	mu     sync.Mutex // guards busy, conn, active, epoch
	busy   bool
	conn   *Conn
	active *Stream
	// epoch advances on every Disconnect; a start that spans one gives up.
	epoch uint64
}

// NewStreamer validates cfg and returns an idle Streamer. No connection is
// made until the first exchange.
func NewStreamer(cfg Config) (*Streamer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.applyDefaults()
	return &Streamer{
		cfg:        cfg,
		log:        cfg.Logger,
		transcript: NewTranscript(),
	}, nil
}

// State returns the current lifecycle state.
func (s *Streamer) State() StreamerState { return StreamerState(s.state.Load()) }

func (s *Streamer) setState(st StreamerState) {
	old := StreamerState(s.state.Swap(int32(st)))
	if old != st {
		s.log.Debug("streamer_state", map[string]any{"from": old.String(), "to": st.String()})
	}
}

// Transcript returns the conversation log shared by every exchange.
func (s *Streamer) Transcript() *Transcript { return s.transcript }

// Transcribe streams audio from in and returns the text the service produces.
// The stream ends on TurnComplete, or once in is closed and the drain window
// has elapsed.
func (s *Streamer) Transcribe(ctx context.Context, in <-chan AudioChunk) (*Stream, error) {
	return s.start(ctx, exchange{
		name:       "transcribe",
		bounded:    true,
		drainInput: true,
		send: func(ctx context.Context, p *sendPump) error {
			return pumpUnits(ctx, p, in)
		},
	})
}

// Speak sends text as one complete turn and returns the service's answer,
// normally audio fragments, ending on TurnComplete.
func (s *Streamer) Speak(ctx context.Context, text string) (*Stream, error) {
	return s.start(ctx, exchange{
		name:    "speak",
		bounded: true,
		send: func(ctx context.Context, p *sendPump) error {
			return pumpUnits(ctx, p, single(TextTurn{Text: text, TurnComplete: true}))
		},
	})
}

// Converse streams audio from in while delivering every turn the service
// produces. It runs until either side fails, the peer closes, or ctx is
// cancelled. Closing in starts the drain window.
func (s *Streamer) Converse(ctx context.Context, in <-chan AudioChunk) (*Stream, error) {
	return s.start(ctx, exchange{
		name:       "converse",
		drainInput: true,
		keepalive:  true,
		send: func(ctx context.Context, p *sendPump) error {
			return pumpUnits(ctx, p, in)
		},
	})
}

// Disconnect cancels any running exchange and releases the connection. An
// exchange still connecting fails with ErrCancelled.
func (s *Streamer) Disconnect() error {
	s.mu.Lock()
	s.epoch++
	active := s.active
	s.mu.Unlock()
	if active != nil {
		_ = active.Close()
	}

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.setState(StreamerClosed)
	return nil
}

type exchange struct {
	name string
	// bounded exchanges end after the first completed turn.
	bounded bool
	// drainInput starts the drain window when the input is exhausted.
	drainInput bool
	keepalive  bool
	send       func(ctx context.Context, p *sendPump) error
}

func (s *Streamer) start(ctx context.Context, x exchange) (*Stream, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	s.busy = true
	conn := s.conn
	epoch := s.epoch
	s.mu.Unlock()

	if conn == nil || conn.State() != StateConnected {
		s.setState(StreamerConnecting)
		var err error
		conn, err = s.connect(ctx)
		if err != nil {
			s.mu.Lock()
			s.busy, s.conn = false, nil
			s.mu.Unlock()
			s.setState(StreamerClosed)
			return nil, err
		}
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if x.bounded && s.cfg.MaxTurnDuration > 0 {
		runCtx, cancel = context.WithTimeoutCause(ctx, s.cfg.MaxTurnDuration, ErrTurnTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	stream := newStream(uuid.NewString(), s.cfg.EventBuffer, cancel)

	s.mu.Lock()
	if s.epoch != epoch {
		s.busy = false
		s.mu.Unlock()
		cancel()
		_ = conn.Close()
		s.log.Info("start_abandoned", map[string]any{"mode": x.name, "reason": "disconnected"})
		return nil, ErrCancelled
	}
	s.conn = conn
	s.active = stream
	s.mu.Unlock()

	s.setState(StreamerStreaming)
	s.cfg.Metrics.streamStarted()
	go s.run(runCtx, stream, conn, x)
	return stream, nil
}

func (s *Streamer) connect(ctx context.Context) (*Conn, error) {
	if s.cfg.Retry != nil {
		return OpenWithRetry(ctx, s.cfg, *s.cfg.Retry)
	}
	return Open(ctx, s.cfg)
}

// run drives both pumps, joins them, settles the connection and publishes
// the terminal events.
func (s *Streamer) run(runCtx context.Context, stream *Stream, conn *Conn, x exchange) {
	log := s.log.WithContext(map[string]any{"stream_id": stream.ID(), "conn_id": conn.ID(), "mode": x.name})
	log.Info("stream_started", nil)
	start := time.Now()

	turns := newTurnTracker(!x.bounded)
	emit := func(ev Event) bool { return stream.emit(runCtx, ev) }

	g, gctx := errgroup.WithContext(runCtx)
	sendCtx, cancelSend := context.WithCancel(gctx)
	recvCtx, cancelRecv := context.WithCancel(gctx)
	defer cancelSend()
	defer cancelRecv()

	var (
		sendErr   error
		completed atomic.Bool
		draining  atomic.Bool
		drainMu   sync.Mutex
		drain     *time.Timer
	)

	if x.keepalive {
		go conn.keepalive(recvCtx, s.cfg.PingInterval)
	}

	sp := &sendPump{conn: conn, turns: turns, transcript: s.transcript, log: log}
	g.Go(func() error {
		err := x.send(sendCtx, sp)
		if err != nil {
			// Stopped because the receive side finished first.
			if errors.Is(err, context.Canceled) && runCtx.Err() == nil {
				return nil
			}
			sendErr = err
			return err
		}
		if !x.drainInput {
			return nil
		}
		s.setState(StreamerDraining)
		draining.Store(true)
		if s.cfg.DrainTimeout > 0 {
			drainMu.Lock()
			drain = time.AfterFunc(s.cfg.DrainTimeout, cancelRecv)
			drainMu.Unlock()
		}
		log.Debug("stream_draining", map[string]any{"sent": sp.sent})
		return nil
	})

	rp := &receivePump{
		conn:       conn,
		turns:      turns,
		transcript: s.transcript,
		log:        log,
		metrics:    s.cfg.Metrics,
		bounded:    x.bounded,
		emit:       emit,
	}
	g.Go(func() error {
		done, err := rp.run(recvCtx)
		if err != nil {
			// The drain window expired; whatever arrived has been delivered.
			if errors.Is(err, context.Canceled) && draining.Load() && gctx.Err() == nil {
				log.Info("drain_window_elapsed", nil)
				return nil
			}
			return err
		}
		completed.Store(done)
		cancelSend()
		return nil
	})

	err := g.Wait()
	drainMu.Lock()
	if drain != nil {
		drain.Stop()
	}
	drainMu.Unlock()

	switch {
	case err == nil && completed.Load():
	case sendErr != nil && errors.Is(err, ErrClosed):
		// The failed write closed the connection under the receive pump.
		err = sendErr
	case runCtx.Err() != nil:
		if errors.Is(context.Cause(runCtx), ErrTurnTimeout) {
			err = ErrTurnTimeout
		} else {
			err = ErrCancelled
		}
	}

	// Releases runCtx for streams that end without Close.
	stream.cancel()

	keep := err == nil && completed.Load() && x.bounded && conn.State() == StateConnected
	s.mu.Lock()
	if !keep {
		turns.Abandon()
		_ = conn.Close()
		if s.conn == conn {
			s.conn = nil
		}
	}
	s.busy, s.active = false, nil
	s.mu.Unlock()
	if keep {
		s.setState(StreamerIdle)
	} else {
		s.setState(StreamerClosed)
	}
	s.cfg.Metrics.streamEnded()

	fields := map[string]any{"duration": time.Since(start).String(), "conn_kept": keep}
	if err != nil {
		fields["err"] = err
		fields["err_kind"] = string(ErrorKindOf(err))
		log.Warn("stream_ended", fields)
	} else {
		log.Info("stream_ended", fields)
	}
	stream.finish(err)
}
