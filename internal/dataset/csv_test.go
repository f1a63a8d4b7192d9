package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objones25/oncoclip/internal/dataset"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "types.csv",
		"id,type\nTCGA-A7-0001,BRCA\nTCGA-BH-0002,LUAD\nTCGA-A7-0003,BRCA\nTCGA-C8-0004,LUAD\nTCGA-BH-0005,BRCA\n")
	writeFile(t, dir, "rna.csv",
		"id,f0,f1\nTCGA-BH-0002,0.5,0.6\nTCGA-A7-0001,0.1,0.2\nTCGA-A7-0003,0.7,0.8\nTCGA-C8-0004,0.9,1.0\nTCGA-BH-0005,1.1,1.2\n")
	writeFile(t, dir, "task-stage.csv",
		"id,truth\nTCGA-A7-0001,1\nTCGA-BH-0002,0\nTCGA-A7-0003,-1\nTCGA-C8-0004,1\n")
	writeFile(t, dir, "task-stage-pos.csv",
		"id,f0\nTCGA-A7-0001,0.1\nTCGA-BH-0002,0.2\nTCGA-A7-0003,0.3\nTCGA-C8-0004,0.4\nTCGA-BH-0005,0.5\n")
	writeFile(t, dir, "task-stage-neg.csv",
		"id,f0\nTCGA-A7-0001,0.9\nTCGA-BH-0002,0.8\nTCGA-A7-0003,0.7\nTCGA-C8-0004,0.6\nTCGA-BH-0005,0.5\n")

	cfg := dataset.DefaultConfig()
	cfg.TrainRatio = 0.6
	h, err := dataset.LoadDir(cfg, dir, []string{"rna"}, []string{"stage"})
	require.NoError(t, err)

	assert.Equal(t, []string{"rna"}, h.Modalities())
	assert.Equal(t, []string{"BRCA", "LUAD"}, h.TypeNames())
	dim, err := h.Dim("rna")
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	// feature rows realigned to types.csv order regardless of file order
	batches, err := h.Pretrain(5, false)
	require.NoError(t, err)
	test, err := h.ClipTest(5, false)
	require.NoError(t, err)
	batches = append(batches, test...)
	var checked int
	for _, b := range batches {
		for i, id := range b.IDs {
			if id == "TCGA-BH-0002" {
				assert.InDelta(t, 0.5, b.Inputs["rna"].At(i, 0), 1e-12)
				checked++
			}
			// entity missing from the truth file is unlabeled
			if id == "TCGA-BH-0005" {
				assert.EqualValues(t, dataset.Unlabeled, b.Tasks["stage"][i])
				checked++
			}
		}
	}
	assert.Equal(t, 2, checked)
}

func TestLoadDirMissingRow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "types.csv", "id,type\nTCGA-A7-0001,BRCA\nTCGA-BH-0002,LUAD\n")
	writeFile(t, dir, "rna.csv", "id,f0\nTCGA-A7-0001,0.1\n")

	_, err := dataset.LoadDir(dataset.DefaultConfig(), dir, []string{"rna"}, nil)
	assert.ErrorIs(t, err, dataset.ErrBadShape)
}

func TestLoadDirMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "types.csv", "id,type\nTCGA-A7-0001,BRCA\n")

	_, err := dataset.LoadDir(dataset.DefaultConfig(), dir, []string{"rna"}, nil)
	assert.Error(t, err)
}
