package contrastive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/distance"
)

const (
	fdEps = 1e-6
	fdTol = 1e-4
)

func gradTestBatches() (*mat.Dense, *mat.Dense) {
	z1 := mat.NewDense(3, 4, []float64{
		0.3, -1.2, 0.8, 0.1,
		1.5, 0.2, -0.4, 2.0,
		-0.7, 0.9, 0.3, -1.1,
	})
	z2 := mat.NewDense(3, 4, []float64{
		0.4, -1.0, 0.7, 0.2,
		1.2, 0.1, -0.6, 1.9,
		-0.9, 1.1, 0.2, -1.0,
	})
	return z1, z2
}

// numericGrad computes the central finite difference of the loss with
// respect to one input batch.
func numericGrad(t *testing.T, z1, z2 *mat.Dense, opts Options, wrt *mat.Dense) *mat.Dense {
	t.Helper()
	rows, cols := wrt.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			orig := wrt.At(i, j)

			wrt.Set(i, j, orig+fdEps)
			plus, err := UniInfoNCE(z1, z2, opts)
			require.NoError(t, err)

			wrt.Set(i, j, orig-fdEps)
			minus, err := UniInfoNCE(z1, z2, opts)
			require.NoError(t, err)

			wrt.Set(i, j, orig)
			out.Set(i, j, (plus-minus)/(2*fdEps))
		}
	}
	return out
}

func assertGradsClose(t *testing.T, want, got *mat.Dense) {
	t.Helper()
	rows, cols := want.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.InDelta(t, want.At(i, j), got.At(i, j), fdTol, "entry (%d,%d)", i, j)
		}
	}
}

func TestUniInfoNCEGradFiniteDifference(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{
			name: "cosine direct",
			opts: Options{Temperature: 0.5, Kind: distance.Cosine},
		},
		{
			name: "cosine both sides",
			opts: Options{Temperature: 0.5, Kind: distance.Cosine, BothSides: true},
		},
		{
			name: "euclidean direct",
			opts: Options{Temperature: 0.5, Kind: distance.Euclidean},
		},
		{
			name: "euclidean both sides",
			opts: Options{Temperature: 0.5, Kind: distance.Euclidean, BothSides: true},
		},
		{
			name: "cosine mixup",
			opts: Options{
				Temperature: 0.5,
				Kind:        distance.Cosine,
				Mixup:       &Mixup{Lam: 0.4, Perm: []int{1, 2, 0}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z1, z2 := gradTestBatches()

			loss, grads, err := UniInfoNCEGrad(z1, z2, tt.opts)
			require.NoError(t, err)

			direct, err := UniInfoNCE(z1, z2, tt.opts)
			require.NoError(t, err)
			assert.InDelta(t, direct, loss, 1e-12)

			assertGradsClose(t, numericGrad(t, z1, z2, tt.opts, z1), grads.Z1)
			assertGradsClose(t, numericGrad(t, z1, z2, tt.opts, z2), grads.Z2)
		})
	}
}

func TestUniInfoNCEGradRejectsDedup(t *testing.T) {
	z1, z2 := gradTestBatches()
	_, _, err := UniInfoNCEGrad(z1, z2, Options{
		Temperature:      0.5,
		Kind:             distance.Cosine,
		RemoveDuplicates: true,
	})
	assert.ErrorIs(t, err, ErrGradUnsupported)
}

func TestInfoNCEGradMatchesLoss(t *testing.T) {
	z1, z2 := gradTestBatches()
	z3 := mat.NewDense(3, 4, []float64{
		0.1, 0.5, -0.3, 0.9,
		-1.1, 0.4, 0.8, 0.2,
		0.6, -0.2, 1.3, -0.5,
	})

	for _, opts := range []MultiOptions{
		{Temperature: 0.5, Kind: distance.Cosine},
		{Temperature: 0.5, Kind: distance.Euclidean, TwoWay: true, Weights: []float64{1.5, 0.5}},
		{Temperature: 0.5, Kind: distance.Cosine, FourWay: true},
	} {
		batches := []*mat.Dense{z1, z2, z3}
		loss, grads, err := InfoNCEGrad(batches, opts)
		require.NoError(t, err)

		direct, err := InfoNCE(batches, opts)
		require.NoError(t, err)
		assert.InDelta(t, direct, loss, 1e-12)
		require.Len(t, grads, 3)

		// Finite-difference spot check on the primary batch.
		fd := mat.NewDense(3, 4, nil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 4; j++ {
				orig := z1.At(i, j)
				z1.Set(i, j, orig+fdEps)
				plus, err := InfoNCE(batches, opts)
				require.NoError(t, err)
				z1.Set(i, j, orig-fdEps)
				minus, err := InfoNCE(batches, opts)
				require.NoError(t, err)
				z1.Set(i, j, orig)
				fd.Set(i, j, (plus-minus)/(2*fdEps))
			}
		}
		assertGradsClose(t, fd, grads[0])
	}
}
