// Package logging builds the structured loggers used by the relay SDK.
//
// The SDK never logs unless the embedding application hands it a
// logger or asks for one here; [Nop] is the default.
package logging

import (
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
)

// New creates a [slog.Logger] that writes JSON to stderr at the given
// level. Accepted level strings (case-insensitive): "debug", "info",
// "warn", "error". An empty string defaults to "info".
func New(level string) *slog.Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter creates a [slog.Logger] writing JSON to w at the given level.
func NewWithWriter(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	// slog.DiscardHandler needs Go 1.24; an always-disabled handler
	// writing to io.Discard is equivalent on older toolchains.
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(math.MaxInt32),
	}))
}

// ParseLevel converts a level string to a [slog.Level].
// Returns [slog.LevelInfo] for unrecognised values.
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
