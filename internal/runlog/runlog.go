// Package runlog configures structured logging for a training run: console
// output for the operator plus a per-run log file that the launcher tails to
// decide when a slot has finished.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Options controls where and how verbosely a run logs.
type Options struct {
	// Dir is the run directory; the log file is written as <Dir>/run.log.
	// Empty disables the file sink.
	Dir string

	// Level is a zerolog level name ("debug", "info", ...). Empty means the
	// LOG_LEVEL environment variable, falling back to info.
	Level string

	// Console disables the pretty console writer when false and logs raw
	// JSON to stderr instead.
	Console bool
}

// Logger owns the run's log sinks.
type Logger struct {
	zerolog.Logger

	file *os.File
	path string
}

// New builds the run logger. The file sink always receives JSON lines so the
// launcher can parse completion markers regardless of console settings.
func New(opts Options) (*Logger, error) {
	level := parseLevel(opts.Level)

	writers := make([]io.Writer, 0, 2)
	if opts.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		writers = append(writers, os.Stderr)
	}

	l := &Logger{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run dir: %w", err)
		}
		path := filepath.Join(opts.Dir, "run.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open run log: %w", err)
		}
		l.file = f
		l.path = path
		writers = append(writers, f)
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return l, nil
}

// Path returns the log file location, or "" when the file sink is disabled.
func (l *Logger) Path() string { return l.path }

// Close flushes and closes the file sink.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func parseLevel(name string) zerolog.Level {
	if name == "" {
		name = os.Getenv("LOG_LEVEL")
	}
	if name == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
