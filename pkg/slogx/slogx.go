// Package slogx builds the process logger and carries it through contexts.
// The CLI owns stdout, so log records go to stderr unless told otherwise.
package slogx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler, level and the fields stamped on every record.
type Config struct {
	Service string
	Version string
	Env     string    // "dev" adds source locations
	Level   string    // debug, info, warn, error
	Format  string    // json or text
	Output  io.Writer // default: os.Stderr
}

// New builds a logger from cfg and installs it as slog's default.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev",
		Level:     parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)

	slog.SetDefault(logger)
	return logger
}

// Discard returns a silent logger without touching slog's default, for
// callers that must pass a logger but are not the process entry point.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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
