package evaluation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objones25/oncoclip/internal/evaluation"
)

func TestAUROC(t *testing.T) {
	tests := []struct {
		name   string
		truth  []float64
		scores []float64
		want   float64
	}{
		{
			name:   "perfect separation",
			truth:  []float64{0, 0, 1, 1},
			scores: []float64{0.1, 0.2, 0.8, 0.9},
			want:   1.0,
		},
		{
			name:   "inverted separation",
			truth:  []float64{1, 1, 0, 0},
			scores: []float64{0.1, 0.2, 0.8, 0.9},
			want:   0.0,
		},
		{
			name:   "unlabeled rows ignored",
			truth:  []float64{0, -1, 1, -1},
			scores: []float64{0.2, 0.99, 0.8, 0.01},
			want:   1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluation.AUROC(tt.truth, tt.scores)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAUROCErrors(t *testing.T) {
	_, err := evaluation.AUROC([]float64{0, 1}, []float64{0.5})
	assert.ErrorIs(t, err, evaluation.ErrBadScores)

	_, err = evaluation.AUROC([]float64{-1, -1}, []float64{0.5, 0.5})
	assert.ErrorIs(t, err, evaluation.ErrNoLabeledRows)

	_, err = evaluation.AUROC([]float64{1, 1, -1}, []float64{0.5, 0.6, 0.1})
	assert.ErrorIs(t, err, evaluation.ErrOneClass)
}
