package testutil

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// TestLogLevel is a helper to set the global log level for a specific test
func TestLogLevel(t *testing.T, level zerolog.Level) func() {
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(level)
	return func() {
		zerolog.SetGlobalLevel(prevLevel)
	}
}

// Logger returns a logger that writes through the test's output, so run
// details only appear for failing or verbose tests.
func Logger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = testWriter{t}
		w.NoColor = true
	})).Level(ParseLogLevel(zerolog.WarnLevel)).With().Timestamp().Logger()
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// ParseLogLevel parses log level from environment variable or returns default
func ParseLogLevel(defaultLevel zerolog.Level) zerolog.Level {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		return defaultLevel
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return defaultLevel
	}
	return level
}
