package livevoice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Common error variables
var (
	// ErrClosed is returned when attempting to use a connection or streamer that
	// has been closed. Open a new connection to resume.
	ErrClosed = errors.New("livevoice: connection is closed")

	// ErrNotConnected is returned by Send when the connection is not in the
	// Connected state.
	ErrNotConnected = errors.New("livevoice: connection is not connected")

	// ErrInvalidConfig is returned when required configuration fields are missing.
	ErrInvalidConfig = errors.New("livevoice: invalid configuration")

	// ErrConnectionFailed is matched by every *ConnectError.
	ErrConnectionFailed = errors.New("livevoice: connection failed")

	// ErrSendTimeout is returned when writing a frame exceeds Config.WriteTimeout.
	ErrSendTimeout = errors.New("livevoice: send timeout")

	// ErrInvalidFrame is matched by every *DecodeError.
	ErrInvalidFrame = errors.New("livevoice: invalid frame")

	// ErrProtocolDesync is matched by *ProtocolDesyncError.
	ErrProtocolDesync = errors.New("livevoice: protocol desync")

	// ErrTurnInProgress reports a second turn opened before the peer completed
	// the current one.
	ErrTurnInProgress = errors.New("livevoice: turn already in progress")

	// ErrTurnTimeout is returned when a turn-bounded exchange exceeds
	// Config.MaxTurnDuration.
	ErrTurnTimeout = errors.New("livevoice: turn timed out")

	// ErrCancelled is reported when the caller cancels an active stream. It
	// wraps context.Canceled.
	ErrCancelled = fmt.Errorf("livevoice: stream cancelled: %w", context.Canceled)
)

// ConfigError represents a configuration validation error.
// It provides detailed information about which configuration field is invalid.
type ConfigError struct {
	Field   string // The configuration field that is invalid
	Value   string // The invalid value (if safe to log)
	Message string // Detailed error message
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("livevoice: invalid config field %q (value: %q): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("livevoice: invalid config field %q: %s", e.Field, e.Message)
}

// Is implements error matching for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ConnectError reports a failed attempt to open a connection: the credential
// check, the network dial, the handshake, or session setup.
type ConnectError struct {
	URL        string // The endpoint that failed to connect
	Operation  string // "credential", "dial", "handshake" or "setup"
	StatusCode int    // HTTP status of a rejected handshake, if any
	Cause      error  // The underlying error
}

func (e *ConnectError) Error() string {
	msg := fmt.Sprintf("livevoice: %s failed for %q", e.Operation, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for ConnectError.
func (e *ConnectError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// IsTimeout reports whether the handshake ran out of time.
func (e *ConnectError) IsTimeout() bool {
	return errors.Is(e.Cause, context.DeadlineExceeded)
}

// IsCredentialRejected reports whether the credential was refused, either
// locally or by the peer.
func (e *ConnectError) IsCredentialRejected() bool {
	return e.Operation == "credential" ||
		e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden
}

// SendError represents an error that occurred while writing a frame.
type SendError struct {
	Kind  string // Envelope kind being sent (e.g. "realtime_input")
	Cause error  // The underlying error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("livevoice: failed to send %s frame: %v", e.Kind, e.Cause)
}

// Unwrap returns the underlying error.
func (e *SendError) Unwrap() error {
	return e.Cause
}

// IsTimeout returns true if the error was caused by a timeout.
func (e *SendError) IsTimeout() bool {
	return errors.Is(e.Cause, ErrSendTimeout)
}

// ReceiveError wraps a transport failure while reading a frame.
type ReceiveError struct {
	Cause error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("livevoice: failed to receive frame: %v", e.Cause)
}

// Unwrap returns the underlying error.
func (e *ReceiveError) Unwrap() error {
	return e.Cause
}

// DecodeError represents an inbound frame that could not be parsed.
type DecodeError struct {
	Raw   []byte // The offending frame, kept for diagnostics
	Cause error  // The underlying parsing error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("livevoice: failed to decode frame (%d bytes): %v", len(e.Raw), e.Cause)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrInvalidFrame
}

// ProtocolDesyncError is the fatal error raised after too many consecutive
// undecodable frames.
type ProtocolDesyncError struct {
	Failures int          // Consecutive decode failures observed
	Last     *DecodeError // The failure that tripped the limit
}

func (e *ProtocolDesyncError) Error() string {
	return fmt.Sprintf("livevoice: protocol desync after %d consecutive decode failures: %v", e.Failures, e.Last)
}

// Unwrap returns the last decode failure.
func (e *ProtocolDesyncError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// Is implements error matching for ProtocolDesyncError.
func (e *ProtocolDesyncError) Is(target error) bool {
	return target == ErrProtocolDesync
}

// ErrorKind classifies errors surfaced in EventError and EventClosed so the
// caller can decide whether to reconnect.
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindConfig         ErrorKind = "config"
	ErrorKindConnect        ErrorKind = "connect"
	ErrorKindSend           ErrorKind = "send"
	ErrorKindReceive        ErrorKind = "receive"
	ErrorKindDecode         ErrorKind = "decode"
	ErrorKindProtocolDesync ErrorKind = "protocol_desync"
	ErrorKindProtocol       ErrorKind = "protocol"
	ErrorKindTurnTimeout    ErrorKind = "turn_timeout"
	ErrorKindCancelled      ErrorKind = "cancelled"
	ErrorKindClosed         ErrorKind = "closed"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// ErrorKindOf maps err to its ErrorKind.
func ErrorKindOf(err error) ErrorKind {
	var (
		sendErr *SendError
		recvErr *ReceiveError
	)
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, ErrInvalidConfig):
		return ErrorKindConfig
	case errors.Is(err, ErrConnectionFailed):
		return ErrorKindConnect
	case errors.Is(err, ErrProtocolDesync):
		return ErrorKindProtocolDesync
	case errors.Is(err, ErrInvalidFrame):
		return ErrorKindDecode
	case errors.Is(err, ErrTurnInProgress):
		return ErrorKindProtocol
	case errors.Is(err, ErrTurnTimeout):
		return ErrorKindTurnTimeout
	case errors.As(err, &sendErr):
		return ErrorKindSend
	case errors.As(err, &recvErr):
		return ErrorKindReceive
	case errors.Is(err, ErrClosed), errors.Is(err, ErrNotConnected):
		return ErrorKindClosed
	default:
		return ErrorKindUnknown
	}
}

// Helper functions for creating specific errors

// NewConfigError creates a new configuration error.
func NewConfigError(field, value, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewConnectError creates a new connect error.
func NewConnectError(url, operation string, cause error) *ConnectError {
	return &ConnectError{
		URL:       url,
		Operation: operation,
		Cause:     cause,
	}
}

// NewSendError creates a new send error.
func NewSendError(kind string, cause error) *SendError {
	return &SendError{
		Kind:  kind,
		Cause: cause,
	}
}

// NewDecodeError creates a decode error holding a private copy of raw.
func NewDecodeError(raw []byte, cause error) *DecodeError {
	return &DecodeError{
		Raw:   append([]byte(nil), raw...),
		Cause: cause,
	}
}

// Validation helper functions

// ValidateConfig performs comprehensive configuration validation.
func ValidateConfig(cfg Config) error {
	if cfg.Endpoint == "" {
		return NewConfigError("Endpoint", "", "cannot be empty")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return NewConfigError("Endpoint", cfg.Endpoint, "invalid URL format")
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return NewConfigError("Endpoint", cfg.Endpoint, "scheme must be ws, wss, http or https")
	}

	if cfg.Credential == nil {
		return NewConfigError("Credential", "", "cannot be nil")
	}

	if cfg.HandshakeTimeout < 0 {
		return NewConfigError("HandshakeTimeout", cfg.HandshakeTimeout.String(), "cannot be negative")
	}
	if cfg.WriteTimeout < 0 {
		return NewConfigError("WriteTimeout", cfg.WriteTimeout.String(), "cannot be negative")
	}
	if cfg.DrainTimeout < 0 {
		return NewConfigError("DrainTimeout", cfg.DrainTimeout.String(), "cannot be negative")
	}
	if cfg.MaxTurnDuration < 0 {
		return NewConfigError("MaxTurnDuration", cfg.MaxTurnDuration.String(), "cannot be negative")
	}
	if cfg.EventBuffer < 0 {
		return NewConfigError("EventBuffer", fmt.Sprint(cfg.EventBuffer), "cannot be negative")
	}

	return nil
}
