package balltree

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with balltree-specific helpers.
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

// LogBuild logs a tree construction.
func (l *Logger) LogBuild(ctx context.Context, n, dim, numNodes int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"points", n,
			"dimension", dim,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "build completed",
			"points", n,
			"dimension", dim,
			"nodes", numNodes,
			"duration", duration,
		)
	}
}

// LogKNN logs a k-nearest-neighbor query.
func (l *Logger) LogKNN(ctx context.Context, k, found int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "knn query failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "knn query completed",
			"k", k,
			"found", found,
			"duration", duration,
		)
	}
}

// LogRadius logs a radius query.
func (l *Logger) LogRadius(ctx context.Context, radius float64, found int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "radius query failed",
			"radius", radius,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "radius query completed",
			"radius", radius,
			"found", found,
			"duration", duration,
		)
	}
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, name string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"name", name,
			"bytes", bytes,
		)
	}
}
