package training_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/optimizer"
	"github.com/objones25/oncoclip/internal/training"
)

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	params := []*optimizer.Param{
		optimizer.NewParam("w0", 2, 3, []float64{1, 2, 3, 4, 5, 6}),
		optimizer.NewParam("b0", 1, 3, []float64{0.1, 0.2, 0.3}),
	}

	require.NoError(t, training.SaveCheckpoint(dir, 7, "rna", 0.42, params))

	ckpt, err := training.LoadCheckpoint(filepath.Join(dir, "weights-rna-epoch7.json"))
	require.NoError(t, err)
	assert.Equal(t, 7, ckpt.Epoch)
	assert.Equal(t, "rna", ckpt.Modality)
	assert.InDelta(t, 0.42, ckpt.Loss, 1e-12)

	fresh := []*optimizer.Param{
		optimizer.NewParam("w0", 2, 3, nil),
		optimizer.NewParam("b0", 1, 3, nil),
	}
	require.NoError(t, ckpt.Restore(fresh))
	assert.True(t, mat.Equal(params[0].Value, fresh[0].Value))
	assert.True(t, mat.Equal(params[1].Value, fresh[1].Value))
}

func TestCheckpointRestoreMismatch(t *testing.T) {
	dir := t.TempDir()
	params := []*optimizer.Param{optimizer.NewParam("w0", 2, 2, nil)}
	require.NoError(t, training.SaveCheckpoint(dir, 1, "rna", 0, params))

	ckpt, err := training.LoadCheckpoint(filepath.Join(dir, "weights-rna-epoch1.json"))
	require.NoError(t, err)

	wrongShape := []*optimizer.Param{optimizer.NewParam("w0", 3, 2, nil)}
	assert.Error(t, ckpt.Restore(wrongShape))

	missing := []*optimizer.Param{optimizer.NewParam("w9", 2, 2, nil)}
	assert.Error(t, ckpt.Restore(missing))
}
