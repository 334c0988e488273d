package kvcache

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with kvcache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithCache adds a cache field to the logger.
func (l *Logger) WithCache(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("cache", name),
	}
}

// LogOpen logs a failed cache open. Successful opens are logged by the
// manager itself.
func (l *Logger) LogOpen(ctx context.Context, name string, quota int64, err error) {
	if err == nil {
		return
	}
	l.WarnContext(ctx, "open cache failed",
		"cache", name,
		"quota", quota,
		"error", err,
	)
}

// LogInsert logs an insert that was not accepted.
func (l *Logger) LogInsert(ctx context.Context, result InsertResult, err error) {
	if err == nil {
		return
	}
	if result == InsertFailed {
		l.WarnContext(ctx, "insert failed", "error", err)
		return
	}
	l.DebugContext(ctx, "insert rejected",
		"result", result.String(),
		"error", err,
	)
}

// LogClose logs a failed cache close.
func (l *Logger) LogClose(ctx context.Context, err error) {
	if err == nil {
		return
	}
	l.WarnContext(ctx, "close cache failed",
		"error", err,
	)
}
