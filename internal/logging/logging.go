// Package logging constructs the service's slog loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/me/jobcascade/internal/config"
)

// Options selects the handler and threshold of a logger.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // text or json
	Writer io.Writer // defaults to stderr; stdout is reserved for command output
	// Debug forces the debug level regardless of Level.
	Debug bool
}

// FromConfig builds Options from the log section of the configuration.
func FromConfig(c config.LogConfig) Options {
	return Options{Level: c.Level, Format: c.Format}
}

// New creates a logger. Every component derives its own logger from it with
// With("component", name).
func New(o Options) *slog.Logger {
	w := o.Writer
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(o.Level)
	if o.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(o.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	l, err := LookupLevel(s)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// LookupLevel converts a level name to slog.Level.
func LookupLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
