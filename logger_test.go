package livevoice

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelInfo, "INFO"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
		{LogLevelOff, "OFF"},
		{LogLevel(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"warn":    LogLevelWarn,
		"Warning": LogLevelWarn,
		"error":   LogLevelError,
		"off":     LogLevelOff,
		"":        LogLevelInfo,
		"verbose": LogLevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), "ParseLogLevel(%q)", in)
	}
}

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromZap(zap.New(core)), logs
}

func TestLogger_Levels(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)
	l.SetLevel(LogLevelWarn)

	l.Debug("debug event", map[string]any{"key": "value"})
	l.Info("info event", nil)
	l.Warn("warn event", map[string]any{"level": "warning"})
	l.Error("error event", map[string]any{"code": 500})

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn event", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "warning", entries[0].ContextMap()["level"])
	assert.Equal(t, "error event", entries[1].Message)
	assert.EqualValues(t, 500, entries[1].ContextMap()["code"])

	l.SetLevel(LogLevelOff)
	l.Error("silenced", nil)
	assert.Equal(t, 2, logs.Len())
}

func TestLogger_WithContext(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)
	scoped := l.WithContext(map[string]any{"conn_id": "c-1", "mode": "speak"})

	scoped.Info("frame_sent", map[string]any{"kind": "client_content"})
	l.Info("unscoped", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]any{"conn_id": "c-1", "mode": "speak", "kind": "client_content"}, entries[0].ContextMap())
	assert.Empty(t, entries[1].ContextMap())
}

func TestLogger_ErrorFields(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)
	l.Warn("keepalive_failed", map[string]any{"err": errors.New("timeout")})

	entries := logs.FilterMessage("keepalive_failed").AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "timeout", entries[0].ContextMap()["err"])
}

func TestLogger_NilIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info("nothing", map[string]any{"a": 1})
		assert.Nil(t, l.WithContext(map[string]any{"a": 1}))
	})
}

func TestNewLoggerWithConfig_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livevoice.log")
	l := NewLoggerWithConfig(LogConfig{Level: "debug", Format: "json", File: path})

	l.Debug("stream_started", map[string]any{"stream_id": "s-1"})
	l.Info("stream_ended", map[string]any{"stream_id": "s-1", "err": nil})
	require.NoError(t, l.Sync())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "stream_started", lines[0]["msg"])
	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "livevoice", lines[0]["logger"])
	assert.Equal(t, "s-1", lines[0]["stream_id"])
	assert.Contains(t, lines[0], "ts")
}

func TestNewLoggerFromEnv(t *testing.T) {
	t.Setenv("LIVEVOICE_LOG_LEVEL", "ERROR")
	l := NewLoggerFromEnv()
	assert.False(t, l.level.Enabled(zapcore.WarnLevel))
	assert.True(t, l.level.Enabled(zapcore.ErrorLevel))

	t.Setenv("LIVEVOICE_LOG_LEVEL", "")
	l = NewLoggerFromEnv()
	assert.True(t, l.level.Enabled(zapcore.InfoLevel))
	assert.False(t, l.level.Enabled(zapcore.DebugLevel))
}
