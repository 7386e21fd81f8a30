package vmheap

import (
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// Logger wraps slog.Logger with vmheap-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger

	// warn throttles warnings so that an exhaustion storm cannot flood
	// the handler. Nil means unthrottled.
	warn *rate.Limiter
}

// Warnings are limited to warnBurst at once and warnEvery afterwards.
const (
	warnEvery = time.Second
	warnBurst = 10
)

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
		warn:   rate.NewLimiter(rate.Every(warnEvery), warnBurst),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
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

// WithArena adds the arena bounds to the logger.
func (l *Logger) WithArena(base, size uintptr) *Logger {
	return &Logger{
		Logger: l.Logger.With("arena_base", base, "arena_size", size),
		warn:   l.warn,
	}
}

// WithSize adds a size field to the logger.
func (l *Logger) WithSize(size uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("size", size),
		warn:   l.warn,
	}
}

// warnAllowed reports whether a warning may be emitted now.
func (l *Logger) warnAllowed() bool {
	return l.warn == nil || l.warn.Allow()
}

// LogNew logs heap construction.
func (l *Logger) LogNew(ctx context.Context, capacity uint32, maxSpan uint64, roots int) {
	l.InfoContext(ctx, "heap initialized",
		"capacity", capacity,
		"max_span", maxSpan,
		"root_spans", roots,
	)
}

// LogAllocate logs an allocate operation.
func (l *Logger) LogAllocate(ctx context.Context, size uint64, addr uintptr, err error) {
	switch {
	case err == nil:
		l.DebugContext(ctx, "allocate completed",
			"size", size,
			"addr", addr,
		)
	case isExhaustion(err):
		if l.warnAllowed() {
			l.WarnContext(ctx, "allocate exhausted heap",
				"size", size,
				"error", err,
			)
		}
	default:
		l.ErrorContext(ctx, "allocate failed",
			"size", size,
			"error", err,
		)
	}
}

// LogRelease logs a release operation.
func (l *Logger) LogRelease(ctx context.Context, addr uintptr, size uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "release failed",
			"addr", addr,
			"size", size,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "release completed",
			"addr", addr,
			"size", size,
		)
	}
}

// LogClose logs heap teardown.
func (l *Logger) LogClose(ctx context.Context, live int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"live_spans", live,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "heap closed",
			"live_spans", live,
		)
	}
}
