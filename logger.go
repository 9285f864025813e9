package rangecache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with rangecache-specific context.
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

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithFile adds a file id field to the logger.
func (l *Logger) WithFile(fileNum uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", fileNum),
	}
}

// WithOffset adds an offset field to the logger.
func (l *Logger) WithOffset(offset uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("offset", offset),
	}
}

// LogEviction logs an eviction pass.
func (l *Logger) LogEviction(entries int, pages int64) {
	l.Debug("evicted entries",
		"entries", entries,
		"pages", pages,
	)
}

// LogLoad logs the outcome of a coalesced load.
func (l *Logger) LogLoad(ctx context.Context, entries int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"entries", entries,
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "load completed",
			"entries", entries,
			"bytes", bytes,
		)
	}
}

// LogAllocationFailure logs an allocation that failed even after
// eviction.
func (l *Logger) LogAllocationFailure(pages int, err error) {
	l.Warn("allocation failed",
		"pages", pages,
		"error", err,
	)
}

// LogClear logs a cache clear.
func (l *Logger) LogClear(entries int) {
	l.Info("cache cleared",
		"entries", entries,
	)
}
