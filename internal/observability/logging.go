// Package observability provides the structured logger and the
// Prometheus metrics the service exports.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the application slog.Logger. Format is "json" or
// "text"; unknown levels default to info. A nil output writes to
// stdout.
func NewLogger(level, format string, output io.Writer) *slog.Logger {
	if output == nil {
		output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: LogLevelFromString(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}
	return slog.New(handler)
}

// LogLevelFromString converts a string to a slog.Level. Unrecognized
// strings map to info.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
