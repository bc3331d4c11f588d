package core

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface for logging operations
type Logger interface {
	// Debug logs a debug message
	Debug(msg string, keyvals ...any)
	// Info logs an informational message
	Info(msg string, keyvals ...any)
	// Warn logs a warning message
	Warn(msg string, keyvals ...any)
	// Error logs an error message
	Error(msg string, keyvals ...any)
	// With returns a new logger with additional key-value pairs
	With(keyvals ...any) Logger
}

// zapLogger adapts a zap.SugaredLogger to Logger
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps an existing zap logger. A nil logger yields NopLogger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return NopLogger()
	}
	return &zapLogger{sugar: l.Sugar()}
}

// NewLogger creates a console logger that writes to the given writer
func NewLogger(writer io.Writer, minLevel zapcore.Level) Logger {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(writer),
		minLevel,
	)
	return NewZapLogger(zap.New(core))
}

func (l *zapLogger) Debug(msg string, keyvals ...any) { l.sugar.Debugw(msg, keyvals...) }

func (l *zapLogger) Info(msg string, keyvals ...any) { l.sugar.Infow(msg, keyvals...) }

func (l *zapLogger) Warn(msg string, keyvals ...any) { l.sugar.Warnw(msg, keyvals...) }

func (l *zapLogger) Error(msg string, keyvals ...any) { l.sugar.Errorw(msg, keyvals...) }

// With returns a new logger with additional key-value pairs
func (l *zapLogger) With(keyvals ...any) Logger {
	return &zapLogger{sugar: l.sugar.With(keyvals...)}
}

// nopLogger is a no-op logger that discards all log messages
type nopLogger struct{}

func (nopLogger) Debug(msg string, keyvals ...any) {}
func (nopLogger) Info(msg string, keyvals ...any)  {}
func (nopLogger) Warn(msg string, keyvals ...any)  {}
func (nopLogger) Error(msg string, keyvals ...any) {}

// With returns a new nopLogger
func (n nopLogger) With(keyvals ...any) Logger {
	return n
}

// NopLogger returns a logger that discards all messages
func NopLogger() Logger {
	return nopLogger{}
}
