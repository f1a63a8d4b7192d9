// Package retrieval measures crossmodal matching quality: top-1
// nearest-neighbor accuracy between two embedding batches, optionally
// stratified into a per-class confusion matrix with within-class retrieval
// statistics.
package retrieval

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/contrastive"
	"github.com/objones25/oncoclip/internal/distance"
)

// ErrBadLabels is returned when the label vector does not cover every row
// or contains a class outside [0, numClasses).
var ErrBadLabels = errors.New("invalid class label vector")

// Options configures a plain accuracy pass.
type Options struct {
	// RemoveDuplicates collapses duplicate rows of z2 before matching.
	// Mutually exclusive with Targets.
	RemoveDuplicates bool

	// Targets overrides the identity pairing.
	Targets []int
}

// Accuracy returns the fraction of z1 rows whose most similar z2 row is the
// correct match.
func Accuracy(kind distance.Kind, z1, z2 *mat.Dense, opts Options) (float64, error) {
	if opts.RemoveDuplicates && opts.Targets != nil {
		return 0, contrastive.ErrConflictingOptions
	}

	candidates := z2
	var mapIdx []int
	if opts.RemoveDuplicates {
		candidates, mapIdx = contrastive.CollapseDuplicates(z2)
	}

	sims, err := distance.Pairwise(kind, z1, candidates)
	if err != nil {
		return 0, err
	}

	n, _ := z1.Dims()
	targets, err := resolveTargets(n, sims, mapIdx, opts.Targets)
	if err != nil {
		return 0, err
	}

	neighbors := distance.ArgmaxRows(sims)
	var hits int
	for i, nb := range neighbors {
		if nb == targets[i] {
			hits++
		}
	}
	return float64(hits) / float64(n), nil
}

// Result carries the stratified accuracy pass: a (numClasses × numClasses)
// count matrix of (predicted class, true class) pairs, plus per-class
// within-class retrieval accuracy and support. Classes with zero support
// carry NaN accuracy, to be skipped by downstream averaging.
type Result struct {
	Counts        *mat.Dense
	ClassAccuracy []float64
	ClassSupport  []int
}

// Confusion runs the identity-paired accuracy pass stratified by integer
// class labels applied to both batches.
func Confusion(kind distance.Kind, z1, z2 *mat.Dense, labels []int, numClasses int) (Result, error) {
	n, _ := z1.Dims()
	if len(labels) != n {
		return Result{}, fmt.Errorf("%w: %d labels for %d rows", ErrBadLabels, len(labels), n)
	}
	if numClasses <= 0 {
		numClasses = maxLabel(labels) + 1
	}
	for _, l := range labels {
		if l < 0 || l >= numClasses {
			return Result{}, fmt.Errorf("%w: label %d outside [0,%d)", ErrBadLabels, l, numClasses)
		}
	}

	sims, err := distance.Pairwise(kind, z1, z2)
	if err != nil {
		return Result{}, err
	}
	_, cols := sims.Dims()
	if cols < n {
		return Result{}, fmt.Errorf("%w: %d rows but %d candidates", distance.ErrDimensionMismatch, n, cols)
	}

	counts := mat.NewDense(numClasses, numClasses, nil)
	neighbors := distance.ArgmaxRows(sims)
	for i, nb := range neighbors {
		pred := labels[nb]
		truth := labels[i]
		counts.Set(pred, truth, counts.At(pred, truth)+1)
	}

	accs := make([]float64, numClasses)
	support := make([]int, numClasses)
	for c := 0; c < numClasses; c++ {
		idx := classIndices(labels, c)
		support[c] = len(idx)
		if len(idx) == 0 {
			accs[c] = math.NaN()
			continue
		}

		// Within-class retrieval restricted to the class's own submatrix:
		// the row offset realigns the argmax with each member's own position.
		sub := mat.NewDense(len(idx), len(idx), nil)
		for a, ia := range idx {
			for b, ib := range idx {
				sub.Set(a, b, sims.At(ia, ib))
			}
		}
		var hits int
		for a, nb := range distance.ArgmaxRows(sub) {
			if nb == a {
				hits++
			}
		}
		accs[c] = float64(hits) / float64(len(idx))
	}

	return Result{Counts: counts, ClassAccuracy: accs, ClassSupport: support}, nil
}

func resolveTargets(n int, sims *mat.Dense, mapIdx, override []int) ([]int, error) {
	_, cols := sims.Dims()
	if override != nil {
		if len(override) != n {
			return nil, fmt.Errorf("%w: %d targets for %d rows", contrastive.ErrBadTargets, len(override), n)
		}
		for _, t := range override {
			if t < 0 || t >= cols {
				return nil, fmt.Errorf("%w: index %d out of range", contrastive.ErrBadTargets, t)
			}
		}
		return override, nil
	}

	targets := make([]int, n)
	for i := range targets {
		targets[i] = i
	}
	if mapIdx != nil {
		for i := range targets {
			targets[i] = mapIdx[i]
		}
		return targets, nil
	}
	if cols < n {
		return nil, fmt.Errorf("%w: %d rows but %d candidates", distance.ErrDimensionMismatch, n, cols)
	}
	return targets, nil
}

func classIndices(labels []int, c int) []int {
	var idx []int
	for i, l := range labels {
		if l == c {
			idx = append(idx, i)
		}
	}
	return idx
}

func maxLabel(labels []int) int {
	max := 0
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max
}
