package runlog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objones25/oncoclip/internal/runlog"
)

func TestLoggerTeesToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")

	l, err := runlog.New(runlog.Options{Dir: dir, Level: "info"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run.log"), l.Path())

	l.Info().Str("phase", "pretrain").Msg("training complete")
	l.Debug().Msg("below the configured level")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "training complete")
	assert.NotContains(t, string(data), "below the configured level")
}

func TestLoggerAppendsAcrossOpens(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")

	first, err := runlog.New(runlog.Options{Dir: dir})
	require.NoError(t, err)
	first.Info().Msg("first open")
	require.NoError(t, first.Close())

	second, err := runlog.New(runlog.Options{Dir: dir})
	require.NoError(t, err)
	second.Info().Msg("second open")
	require.NoError(t, second.Close())

	data, err := os.ReadFile(second.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "first open")
	assert.Contains(t, string(data), "second open")
}

func TestLoggerWithoutFileSink(t *testing.T) {
	l, err := runlog.New(runlog.Options{})
	require.NoError(t, err)
	assert.Empty(t, l.Path())
	assert.NoError(t, l.Close())
}
