// Package logger builds the slog logger shared by the CLI and the driver.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Level = slog.Level

const (
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
)

// New returns a text logger writing to w. Verbose lowers the level to
// debug; otherwise only warnings and errors are shown.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := LevelWarning
	if verbose {
		level = LevelDebug
	}
	return NewWithLevel(w, level)
}

// NewWithLevel returns a text logger writing to w at level.
func NewWithLevel(w io.Writer, level Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// No timestamps: log lines are compared across runs.
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}
