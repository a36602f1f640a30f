// Package log provides the logging infrastructure shared by all Lumora
// components.
//
// Loggers are plain *slog.Logger values injected through constructors, never
// reached through globals. A component that needs scoped output derives a
// child with logger.With("component", name).
//
// Usage:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	classifier := intent.NewClassifier(..., logger.With("component", "intent"))
//
// Tests use NewNop, or NewWithWriter with a bytes.Buffer to assert on output.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger. Components accept log.Logger as a
// dependency; the alias keeps full compatibility with the slog ecosystem
// without introducing a wrapper interface.
type Logger = *slog.Logger

// Config defines logger configuration options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// JSON enables JSON output. Default: false (text format).
	JSON bool

	// AddSource adds source file information to log entries.
	AddSource bool
}

// New creates a logger writing to os.Stderr with the given configuration.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger that writes to w. Useful for tests or
// custom output destinations.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards all output. Test-only: production
// code should always use New or NewWithWriter so operator logs survive.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
