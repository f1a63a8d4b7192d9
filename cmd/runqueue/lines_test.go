package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queueFile = "oncoclip train --config a.yaml --out exp --name run-a\n" +
	"# oncoclip train --config b.yaml --out exp --name run-b\n" +
	"\n" +
	"oncoclip train --config c.yaml --out exp --name run-c\n"

func TestPendingJobsSkipsCompletedAndBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_lines.txt")
	require.NoError(t, os.WriteFile(path, []byte(queueFile), 0o644))

	jobs, err := pendingJobs(path)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, 0, jobs[0].line)
	assert.Equal(t, 3, jobs[1].line)
	assert.Contains(t, jobs[0].cmd, "run-a")
	assert.Contains(t, jobs[1].cmd, "run-c")
}

func TestMarkCompleteWritesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_lines.txt")
	require.NoError(t, os.WriteFile(path, []byte(queueFile), 0o644))

	require.NoError(t, markComplete(path, 0))

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, queueFile, string(backup))

	jobs, err := pendingJobs(path)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, jobs[0].cmd, "run-c")

	assert.Error(t, markComplete(path, 99))
}

func TestRunLogPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("exp", "run-a", "run.log"),
		runLogPath("oncoclip train --config a.yaml --out exp --name run-a"))
	assert.Equal(t,
		filepath.Join("exp", "run-b", "run.log"),
		runLogPath("oncoclip train --out=exp --name=run-b"))
	assert.Equal(t, "", runLogPath("oncoclip train --config a.yaml"))
}

func TestHasMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	ok, err := hasMarker(path)
	require.NoError(t, err)
	assert.False(t, ok, "missing file is not an error")

	require.NoError(t, os.WriteFile(path, []byte(`{"message":"training complete"}`+"\n"), 0o644))
	ok, err = hasMarker(path)
	require.NoError(t, err)
	assert.True(t, ok)
}
