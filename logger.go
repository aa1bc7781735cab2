package livevoice

import (
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	// LogLevelDebug logs everything including detailed debugging information
	LogLevelDebug LogLevel = iota
	// LogLevelInfo logs informational messages and above
	LogLevelInfo
	// LogLevelWarn logs warnings and above
	LogLevelWarn
	// LogLevelError logs only errors
	LogLevelError
	// LogLevelOff disables all logging
	LogLevelOff
)

// String returns the string representation of a LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a string to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	case "OFF":
		return LogLevelOff
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelOff:
		return zapcore.FatalLevel + 1
	default:
		return zapcore.InfoLevel
	}
}

// LogConfig describes where and how a Logger writes.
type LogConfig struct {
	// Level is one of debug, info, warn, error, off.
	Level string
	// Format is "console" (default) or "json".
	Format string
	// File, when set, writes to a rotated file instead of stderr.
	File string
	// MaxSizeMB, MaxBackups and MaxAgeDays control rotation of File.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger provides structured logging with configurable levels. Each record
// is an event name plus a set of fields.
type Logger struct {
	level zap.AtomicLevel
	z     *zap.Logger
}

// NewLogger creates a console logger writing to stderr.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithConfig(LogConfig{Level: level.String()})
}

// NewLoggerWithConfig creates a logger from cfg.
func NewLoggerWithConfig(cfg LogConfig) *Logger {
	atom := zap.NewAtomicLevelAt(ParseLogLevel(cfg.Level).zapLevel())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var ws zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if cfg.File != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    max(cfg.MaxSizeMB, 10),
			MaxBackups: max(cfg.MaxBackups, 1),
			MaxAge:     max(cfg.MaxAgeDays, 7),
		})
	}

	z := zap.New(zapcore.NewCore(enc, ws, atom)).Named("livevoice")
	return &Logger{level: atom, z: z}
}

// NewLoggerFromZap wraps an existing zap logger. Level changes through
// SetLevel only affect records below the core's own level.
func NewLoggerFromZap(z *zap.Logger) *Logger {
	return &Logger{level: zap.NewAtomicLevelAt(zapcore.DebugLevel), z: z}
}

// NewLoggerFromEnv creates a logger with level from LIVEVOICE_LOG_LEVEL env var
func NewLoggerFromEnv() *Logger {
	return NewLoggerWithConfig(LogConfig{
		Level:  os.Getenv("LIVEVOICE_LOG_LEVEL"),
		Format: os.Getenv("LIVEVOICE_LOG_FORMAT"),
	})
}

// SetLevel updates the logger's minimum level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger { return l.z }

// Sync flushes buffered records.
func (l *Logger) Sync() error { return l.z.Sync() }

// Debug logs debug-level messages
func (l *Logger) Debug(event string, fields map[string]any) {
	l.log(zapcore.DebugLevel, event, fields)
}

// Info logs info-level messages
func (l *Logger) Info(event string, fields map[string]any) {
	l.log(zapcore.InfoLevel, event, fields)
}

// Warn logs warning-level messages
func (l *Logger) Warn(event string, fields map[string]any) {
	l.log(zapcore.WarnLevel, event, fields)
}

// Error logs error-level messages
func (l *Logger) Error(event string, fields map[string]any) {
	l.log(zapcore.ErrorLevel, event, fields)
}

func (l *Logger) log(level zapcore.Level, event string, fields map[string]any) {
	if l == nil || !l.level.Enabled(level) {
		return
	}
	if ce := l.z.Check(level, event); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

// zapFields converts fields in key order so output is stable.
func zapFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

// WithContext returns a logger that includes additional context in all log messages
func (l *Logger) WithContext(context map[string]any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{level: l.level, z: l.z.With(zapFields(context)...)}
}

// DefaultLogger is the default logger instance used when no custom logger is provided
var DefaultLogger = NewLoggerFromEnv()
