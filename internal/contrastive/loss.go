// Package contrastive implements the InfoNCE loss family used for
// crossmodal pretraining: the two-batch primitive with optional symmetric
// pooling, duplicate collapsing, target overrides and mixup-interpolated
// labels, plus the multi-batch wrapper that combines pairwise terms.
//
// Losses come with closed-form gradients with respect to the input
// embeddings so that encoders can backpropagate without an autograd engine.
package contrastive

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/distance"
)

var (
	// ErrConflictingOptions is returned when remove-duplicates and explicit
	// targets are requested together
	ErrConflictingOptions = errors.New("remove duplicates and explicit targets are mutually exclusive")

	// ErrDegenerateDim is returned when cosine similarity is requested on
	// one-dimensional embeddings
	ErrDegenerateDim = errors.New("cosine loss needs more than one embedding dimension")

	// ErrBadTemperature is returned for a non-positive temperature
	ErrBadTemperature = errors.New("temperature must be positive")

	// ErrBatchSizeMismatch is returned when identity pairing is impossible
	ErrBatchSizeMismatch = errors.New("batch sizes incompatible with identity pairing")

	// ErrBadTargets is returned when a target vector has the wrong length
	// or points outside the similarity matrix
	ErrBadTargets = errors.New("invalid target override")

	// ErrBadMixup is returned when the mixup permutation is unusable
	ErrBadMixup = errors.New("invalid mixup permutation")

	// ErrGradUnsupported is returned when a gradient is requested for an
	// evaluation-only configuration
	ErrGradUnsupported = errors.New("gradient not defined for this configuration")
)

// Mixup blends two label assignments: the loss becomes
// (1−Lam)·CE(targets) + Lam·CE(Perm).
type Mixup struct {
	Lam  float64
	Perm []int
}

// Options configures the two-batch InfoNCE primitive.
type Options struct {
	// Temperature sharpens the similarity rows before the softmax.
	Temperature float64

	// Kind selects the similarity computation.
	Kind distance.Kind

	// BothSides concatenates [z1;z2] into a combined pool and pairs row i
	// with row i+n symmetrically.
	BothSides bool

	// RemoveDuplicates collapses duplicate rows of z2 into unique
	// representatives before matching. Mutually exclusive with Targets.
	RemoveDuplicates bool

	// Targets overrides the identity pairing: row i of z1 matches column
	// Targets[i] of the similarity matrix.
	Targets []int

	// Mixup, when set, interpolates the target labels.
	Mixup *Mixup
}

func (o Options) validate(z1, z2 *mat.Dense) error {
	if o.Temperature <= 0 {
		return fmt.Errorf("%w: %v", ErrBadTemperature, o.Temperature)
	}
	if err := distance.Validate(z1, z2); err != nil {
		return err
	}
	if _, d := z1.Dims(); d <= 1 && o.Kind == distance.Cosine {
		return ErrDegenerateDim
	}
	if o.RemoveDuplicates && o.Targets != nil {
		return ErrConflictingOptions
	}
	return nil
}

// UniInfoNCE computes the two-batch noise-contrastive loss.
func UniInfoNCE(z1, z2 *mat.Dense, opts Options) (float64, error) {
	st, err := prepare(z1, z2, opts)
	if err != nil {
		return 0, err
	}
	return st.loss(), nil
}

// lossState carries the forward pass so that loss and gradient share one
// code path.
type lossState struct {
	opts   Options
	logits *mat.Dense
	probs  *mat.Dense // row-wise softmax of logits
	labels []int
	perm   []int // mixup alternative labels, nil without mixup

	// inputs as seen by the similarity kernel
	a, b     *mat.Dense
	pooled   bool
	poolRows int // rows of z1 when pooled
}

// prepare validates the options, resolves duplicate collapsing, pooling and
// labels, and evaluates logits and row softmax.
func prepare(z1, z2 *mat.Dense, opts Options) (*lossState, error) {
	if err := opts.validate(z1, z2); err != nil {
		return nil, err
	}

	n, _ := z1.Dims()
	var mapIdx []int
	b := z2
	if opts.RemoveDuplicates {
		b, mapIdx = CollapseDuplicates(z2)
	}

	st := &lossState{opts: opts}
	a := z1
	if opts.BothSides {
		r2, _ := b.Dims()
		if !opts.RemoveDuplicates && r2 != n {
			return nil, fmt.Errorf("%w: %d vs %d", ErrBatchSizeMismatch, n, r2)
		}
		a = stackRows(z1, b)
		b = a
		st.pooled = true
		st.poolRows = n
	}

	logits, err := distance.Pairwise(opts.Kind, a, b)
	if err != nil {
		return nil, err
	}
	logits.Scale(1/opts.Temperature, logits)

	labels, err := resolveLabels(n, logits, mapIdx, opts)
	if err != nil {
		return nil, err
	}

	rows, cols := logits.Dims()
	if opts.Mixup != nil {
		if len(opts.Mixup.Perm) != rows {
			return nil, fmt.Errorf("%w: got %d indices for %d rows", ErrBadMixup, len(opts.Mixup.Perm), rows)
		}
		for _, p := range opts.Mixup.Perm {
			if p < 0 || p >= cols {
				return nil, fmt.Errorf("%w: index %d out of range", ErrBadMixup, p)
			}
		}
		st.perm = opts.Mixup.Perm
	}

	st.a, st.b = a, b
	st.logits = logits
	st.labels = labels
	st.probs = softmaxRows(logits)
	return st, nil
}

// resolveLabels builds the per-row target index list: explicit override,
// symmetric both-sides pairing, or the identity permutation, with duplicate
// collapsing remapping labels to representative indices.
func resolveLabels(n int, logits *mat.Dense, mapIdx []int, opts Options) ([]int, error) {
	rows, cols := logits.Dims()

	if opts.Targets != nil {
		if len(opts.Targets) != rows {
			return nil, fmt.Errorf("%w: got %d targets for %d rows", ErrBadTargets, len(opts.Targets), rows)
		}
		for _, t := range opts.Targets {
			if t < 0 || t >= cols {
				return nil, fmt.Errorf("%w: index %d out of range", ErrBadTargets, t)
			}
		}
		return opts.Targets, nil
	}

	labels := make([]int, rows)
	switch {
	case opts.BothSides && mapIdx == nil:
		for i := 0; i < n; i++ {
			labels[i] = i + n
			labels[i+n] = i
		}
	case opts.BothSides:
		// Duplicates were collapsed on z2 alone before pooling: row i of z1
		// pairs with its representative at offset n, and each representative
		// pairs back with the first z1 row it stands for.
		if len(mapIdx) != n {
			return nil, fmt.Errorf("%w: %d vs %d", ErrBatchSizeMismatch, n, len(mapIdx))
		}
		reps := rows - n
		inv := make([]int, reps)
		for j := range inv {
			inv[j] = -1
		}
		for i, rep := range mapIdx {
			labels[i] = n + rep
			if inv[rep] == -1 {
				inv[rep] = i
			}
		}
		for j, i := range inv {
			labels[n+j] = i
		}
	case mapIdx != nil:
		if len(mapIdx) != rows {
			return nil, fmt.Errorf("%w: %d vs %d", ErrBatchSizeMismatch, rows, len(mapIdx))
		}
		copy(labels, mapIdx)
	default:
		if cols < rows {
			return nil, fmt.Errorf("%w: %d rows but only %d candidates", ErrBatchSizeMismatch, rows, cols)
		}
		for i := range labels {
			labels[i] = i
		}
	}
	return labels, nil
}

// loss evaluates the mean row-wise cross entropy, mixing in the permuted
// labels when configured.
func (st *lossState) loss() float64 {
	base := meanCrossEntropy(st.logits, st.labels)
	if st.perm == nil {
		return base
	}
	alt := meanCrossEntropy(st.logits, st.perm)
	lam := st.opts.Mixup.Lam
	return (1-lam)*base + lam*alt
}

// meanCrossEntropy computes the mean of −log softmax(row)[target] using the
// numerically stable log-sum-exp form.
func meanCrossEntropy(logits *mat.Dense, targets []int) float64 {
	rows, cols := logits.Dims()
	var total float64
	for i := 0; i < rows; i++ {
		row := logits.RawRowView(i)
		max := floats.Max(row)
		var sum float64
		for j := 0; j < cols; j++ {
			sum += math.Exp(row[j] - max)
		}
		total += max + math.Log(sum) - row[targets[i]]
	}
	return total / float64(rows)
}

// softmaxRows returns the row-wise softmax of m.
func softmaxRows(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		dst := out.RawRowView(i)
		max := floats.Max(row)
		var sum float64
		for j := 0; j < cols; j++ {
			dst[j] = math.Exp(row[j] - max)
			sum += dst[j]
		}
		floats.Scale(1/sum, dst)
	}
	return out
}

// stackRows returns [top; bottom].
func stackRows(top, bottom *mat.Dense) *mat.Dense {
	rt, c := top.Dims()
	rb, _ := bottom.Dims()
	out := mat.NewDense(rt+rb, c, nil)
	out.Slice(0, rt, 0, c).(*mat.Dense).Copy(top)
	out.Slice(rt, rt+rb, 0, c).(*mat.Dense).Copy(bottom)
	return out
}
