// Package observability provides structured logging and metrics collection.
//
// Logger wraps log/slog with component-scoped context fields.
// MetricsCollector counts store outcomes and records operation latency.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger wraps slog with persistent component context.
type Logger struct {
	mu        sync.RWMutex
	inner     *slog.Logger
	component string
	fields    []slog.Attr
}

// NewLogger creates a structured JSON logger for a component at debug level.
// Output defaults to os.Stderr if w is nil.
func NewLogger(component string, w io.Writer) *Logger {
	return NewLoggerAtLevel(component, w, slog.LevelDebug)
}

// NewLoggerAtLevel creates a structured JSON logger with a minimum level.
func NewLoggerAtLevel(component string, w io.Writer, level slog.Leveler) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		inner:     slog.New(handler),
		component: component,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLoggerAtLevel("discard", io.Discard, slog.LevelError+1)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional persistent fields.
func (l *Logger) With(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fields := make([]slog.Attr, 0, len(l.fields)+1)
	fields = append(fields, l.fields...)
	return &Logger{
		inner:     l.inner.With(slog.Any(key, value)),
		component: l.component,
		fields:    append(fields, slog.Any(key, value)),
	}
}

// attrs prepends the component name to the arguments.
func (l *Logger) attrs(args []any) []any {
	return append([]any{slog.String("component", l.component)}, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	l.inner.Debug(msg, l.attrs(args)...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	l.inner.Info(msg, l.attrs(args)...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	l.inner.Warn(msg, l.attrs(args)...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	l.inner.Error(msg, l.attrs(args)...)
}

// Op logs the outcome of a store operation. A nil err logs at DEBUG,
// otherwise at WARN with the error attached.
func (l *Logger) Op(op, id string, err error, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.String("op", op),
	}, args...)
	if id != "" {
		allArgs = append(allArgs, slog.String("id", id))
	}
	if err != nil {
		allArgs = append(allArgs, slog.String("error", err.Error()))
		l.inner.Warn(op+" failed", allArgs...)
		return
	}
	l.inner.Debug(op, allArgs...)
}

// Component returns the component name associated with this logger.
func (l *Logger) Component() string {
	return l.component
}
