package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objones25/oncoclip/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, config.Default().Validate())
}

func TestValidateRejectsConflicts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Run)
	}{
		{"twoway and fourway", func(r *config.Run) { r.TwoWay = true; r.FourWay = true }},
		{"mixup with fourway", func(r *config.Run) { r.MixupScale = 0.5; r.FourWay = true }},
		{"single modality", func(r *config.Run) { r.Modalities = []string{"rna"} }},
		{"missing name", func(r *config.Run) { r.Name = "" }},
		{"zero temperature", func(r *config.Run) { r.Temperature = 0 }},
		{"bad distance", func(r *config.Run) { r.Distance = "manhattan" }},
		{"zero epochs", func(r *config.Run) { r.Epochs = 0 }},
		{"degenerate rep dim", func(r *config.Run) { r.RepDim = 1 }},
		{"weights without mode", func(r *config.Run) { r.Weights = []float64{1, 2} }},
		{"negative type count", func(r *config.Run) { r.ChainByType = true; r.TypeCount = -1 }},
		{"type count without chaining", func(r *config.Run) { r.TypeCount = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := config.Default()
			tt.mutate(&run)
			assert.ErrorIs(t, run.Validate(), config.ErrInvalidConfig)
		})
	}
}

func TestValidateModeSkipsRunChecks(t *testing.T) {
	run := config.Default()
	run.ValidateMode = true
	run.Modalities = nil
	run.Name = ""
	assert.NoError(t, run.Validate())
}

func TestLoadAppliesYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"name: breast-rna-reports\ntemperature: 0.07\ntwoway: true\nweights: [1.0, 0.5]\n"+
			"chain_by_type: true\ntype_count: 4\n"), 0o644))

	t.Setenv("ONCOCLIP_SEED", "42")

	run, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "breast-rna-reports", run.Name)
	assert.InDelta(t, 0.07, run.Temperature, 1e-12)
	assert.True(t, run.TwoWay)
	assert.Equal(t, []float64{1.0, 0.5}, run.Weights)
	assert.True(t, run.ChainByType)
	assert.Equal(t, 4, run.TypeCount)
	assert.EqualValues(t, 42, run.Seed)

	// defaults survive for fields the file omits
	assert.Equal(t, 100, run.Epochs)
	require.NoError(t, run.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
