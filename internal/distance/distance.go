// Package distance computes pairwise similarity matrices between batches of
// embedding vectors. Both kinds return similarities: higher means closer,
// including the euclidean kind, which is derived algebraically from squared
// norms and keeps the negated sign so that row-wise argmax selects the
// nearest neighbor.
package distance

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimensionMismatch is returned when two batches disagree on feature dimension
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyBatch is returned when a batch has no rows or no columns
	ErrEmptyBatch = errors.New("empty embedding batch")

	// ErrUnknownKind is returned for a distance kind outside the closed set
	ErrUnknownKind = errors.New("unknown distance kind")
)

// Kind selects the similarity computation.
type Kind int

const (
	Cosine Kind = iota
	Euclidean
)

func (k Kind) String() string {
	switch k {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	default:
		return "unknown"
	}
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "cosine":
		return Cosine, nil
	case "euclidean":
		return Euclidean, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Validate checks that z1 and z2 can be compared.
func Validate(z1, z2 mat.Matrix) error {
	r1, c1 := z1.Dims()
	r2, c2 := z2.Dims()
	if r1 == 0 || c1 == 0 || r2 == 0 || c2 == 0 {
		return ErrEmptyBatch
	}
	if c1 != c2 {
		return fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, c1, c2)
	}
	return nil
}

// NormalizeRows returns a copy of z with every row scaled to unit L2 norm.
// Zero rows are left untouched.
func NormalizeRows(z mat.Matrix) *mat.Dense {
	r, _ := z.Dims()
	out := mat.DenseCopyOf(z)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		norm := floats.Norm(row, 2)
		if norm == 0 {
			continue
		}
		floats.Scale(1/norm, row)
	}
	return out
}

// Pairwise returns the n×m similarity matrix between the rows of z1 and z2.
//
// Cosine L2-normalizes both batches row-wise and returns the dot-product
// matrix. Euclidean returns 2·z1·z2ᵀ − ‖z1ᵢ‖²·1ᵀ − 1·‖z2ⱼ‖²ᵀ, the negated
// squared euclidean distance.
func Pairwise(kind Kind, z1, z2 mat.Matrix) (*mat.Dense, error) {
	if err := Validate(z1, z2); err != nil {
		return nil, err
	}

	switch kind {
	case Cosine:
		a := NormalizeRows(z1)
		b := NormalizeRows(z2)
		n, _ := a.Dims()
		m, _ := b.Dims()
		sim := mat.NewDense(n, m, nil)
		sim.Mul(a, b.T())
		return sim, nil
	case Euclidean:
		n, _ := z1.Dims()
		m, _ := z2.Dims()
		sim := mat.NewDense(n, m, nil)
		sim.Mul(z1, z2.T())
		sim.Scale(2, sim)

		sq1 := rowSquaredNorms(z1)
		sq2 := rowSquaredNorms(z2)
		for i := 0; i < n; i++ {
			row := sim.RawRowView(i)
			for j := 0; j < m; j++ {
				row[j] -= sq1[i] + sq2[j]
			}
		}
		return sim, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// ArgmaxRows returns the column index of the largest entry in each row.
func ArgmaxRows(m *mat.Dense) []int {
	r, c := m.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		best := math.Inf(-1)
		idx := 0
		for j := 0; j < c; j++ {
			if v := m.At(i, j); v > best {
				best = v
				idx = j
			}
		}
		out[i] = idx
	}
	return out
}

func rowSquaredNorms(z mat.Matrix) []float64 {
	r, c := z.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			v := z.At(i, j)
			sum += v * v
		}
		out[i] = sum
	}
	return out
}
