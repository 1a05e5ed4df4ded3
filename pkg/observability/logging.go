// Package observability provides structured logging, metrics, and tracing
// for the sidebar synchronization engine.
package observability

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a structured logger for sideboard components
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new structured logger writing JSON to stdout
func NewLogger(component string, level slog.Level) *Logger {
	return NewLoggerWithWriter(os.Stdout, component, level)
}

// NewLoggerWithWriter creates a structured logger writing to w
func NewLoggerWithWriter(w io.Writer, component string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(w, opts)

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "sideboard"),
	)

	return &Logger{Logger: logger}
}

// WithSidebar returns a logger with sidebar-specific fields
func (l *Logger) WithSidebar(objectiveID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("objective_id", objectiveID),
		),
	}
}

// WithViewer returns a logger with viewer-specific fields
func (l *Logger) WithViewer(viewerID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("viewer_id", viewerID),
		),
	}
}

// ParseLevel maps a config level string to a slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
