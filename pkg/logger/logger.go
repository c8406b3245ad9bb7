// Package logger provides the structured slog.Logger used across turnbase.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Scope returns a slog.Attr tagging log lines with the subsystem that
// emitted them (e.g. "schema", "compiler", "versioning").
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error returns a slog.Attr wrapping err under the conventional "error" key.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewLogger builds a *slog.Logger whose level is controlled by LOG_LEVEL
// (debug/info/warn|warning/error, case-insensitive, default info) and whose
// handler is JSON when GO_ENV=production, text otherwise.
func NewLogger() *slog.Logger {
	level := levelFromEnv(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("GO_ENV"), "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func levelFromEnv(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
