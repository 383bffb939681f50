package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a JSON logger on stdout and installs it as the slog default.
func New(level string) *slog.Logger {
	l := NewWithWriter(os.Stdout, level)
	slog.SetDefault(l)
	return l
}

func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
