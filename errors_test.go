package livevoice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("Endpoint", "ftp://x", "scheme must be ws, wss, http or https")
	assert.Equal(t, `livevoice: invalid config field "Endpoint" (value: "ftp://x"): scheme must be ws, wss, http or https`, err.Error())
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	err = NewConfigError("Credential", "", "cannot be nil")
	assert.Equal(t, `livevoice: invalid config field "Credential": cannot be nil`, err.Error())
}

func TestConnectError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewConnectError("wss://live.test/ws", "dial", cause)

	assert.Equal(t, `livevoice: dial failed for "wss://live.test/ws": connection refused`, err.Error())
	assert.True(t, errors.Is(err, ErrConnectionFailed))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, err.IsTimeout())
	assert.False(t, err.IsCredentialRejected())

	err.StatusCode = http.StatusForbidden
	err.Operation = "handshake"
	assert.Contains(t, err.Error(), "(status 403)")
	assert.True(t, err.IsCredentialRejected())

	timeout := NewConnectError("u", "setup", fmt.Errorf("read: %w", context.DeadlineExceeded))
	assert.True(t, timeout.IsTimeout())

	cred := NewConnectError("u", "credential", errors.New("expired"))
	assert.True(t, cred.IsCredentialRejected())
}

func TestSendError(t *testing.T) {
	err := NewSendError("realtime_input", ErrSendTimeout)
	assert.Equal(t, "livevoice: failed to send realtime_input frame: livevoice: send timeout", err.Error())
	assert.True(t, err.IsTimeout())
	assert.True(t, errors.Is(err, ErrSendTimeout))

	assert.False(t, NewSendError("client_content", io.ErrClosedPipe).IsTimeout())
}

func TestDecodeError(t *testing.T) {
	raw := []byte("{bad")
	err := NewDecodeError(raw, errors.New("unexpected end of JSON input"))
	raw[0] = 'X'

	assert.Equal(t, "{bad", string(err.Raw))
	assert.Equal(t, "livevoice: failed to decode frame (4 bytes): unexpected end of JSON input", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidFrame))
	assert.False(t, errors.Is(err, ErrProtocolDesync))
}

func TestProtocolDesyncError(t *testing.T) {
	last := NewDecodeError([]byte("x"), errors.New("boom"))
	err := &ProtocolDesyncError{Failures: 3, Last: last}

	assert.True(t, errors.Is(err, ErrProtocolDesync))
	assert.True(t, errors.Is(err, ErrInvalidFrame), "unwraps to the last decode failure")
	assert.Contains(t, err.Error(), "after 3 consecutive decode failures")

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Same(t, last, de)

	assert.NoError(t, (&ProtocolDesyncError{Failures: 3}).Unwrap())
}

func TestErrorKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKindNone},
		{"cancelled", ErrCancelled, ErrorKindCancelled},
		{"context canceled", context.Canceled, ErrorKindCancelled},
		{"config", NewConfigError("Endpoint", "", "cannot be empty"), ErrorKindConfig},
		{"connect", NewConnectError("u", "dial", io.EOF), ErrorKindConnect},
		{"desync", &ProtocolDesyncError{Failures: 3, Last: NewDecodeError(nil, io.EOF)}, ErrorKindProtocolDesync},
		{"decode", NewDecodeError([]byte("x"), io.EOF), ErrorKindDecode},
		{"turn in progress", ErrTurnInProgress, ErrorKindProtocol},
		{"turn timeout", ErrTurnTimeout, ErrorKindTurnTimeout},
		{"send", NewSendError("client_content", io.ErrClosedPipe), ErrorKindSend},
		{"send after close", NewSendError("client_content", ErrNotConnected), ErrorKindSend},
		{"receive", &ReceiveError{Cause: io.ErrUnexpectedEOF}, ErrorKindReceive},
		{"closed", ErrClosed, ErrorKindClosed},
		{"not connected", ErrNotConnected, ErrorKindClosed},
		{"wrapped", fmt.Errorf("stream: %w", ErrTurnTimeout), ErrorKindTurnTimeout},
		{"unknown", errors.New("mystery"), ErrorKindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKindOf(tt.err))
		})
	}
}
