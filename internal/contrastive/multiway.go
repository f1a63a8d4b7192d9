package contrastive

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/distance"
)

var (
	// ErrTooFewBatches is returned when the wrapper has nothing to pair
	ErrTooFewBatches = errors.New("need at least two embedding batches")

	// ErrConflictingModes is returned when twoway and fourway are both set
	ErrConflictingModes = errors.New("twoway and fourway modes are mutually exclusive")

	// ErrBadWeights is returned when the weight list does not cover the
	// secondary batches
	ErrBadWeights = errors.New("per-pair weight list has wrong length")
)

// MultiOptions configures the multi-batch wrapper.
//
// With neither mode flag set, every ordered pair (i,j), i≠j, contributes a
// symmetric combined-pool term and the K(K−1) terms are averaged. TwoWay
// pairs batch 0 against every other batch in one direction; FourWay does the
// same in both directions. Each twoway/fourway term is scaled by its
// per-pair weight.
type MultiOptions struct {
	Temperature float64
	Kind        distance.Kind
	TwoWay      bool
	FourWay     bool
	Weights     []float64
	Mixup       *Mixup
}

// Validate rejects conflicting mode selections before any numeric work.
func (o MultiOptions) Validate(numBatches int) error {
	if numBatches < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewBatches, numBatches)
	}
	if o.TwoWay && o.FourWay {
		return ErrConflictingModes
	}
	if o.Weights != nil && len(o.Weights) != numBatches-1 {
		return fmt.Errorf("%w: %d weights for %d secondary batches", ErrBadWeights, len(o.Weights), numBatches-1)
	}
	if o.Mixup != nil && !o.TwoWay && !o.FourWay {
		return fmt.Errorf("%w: mixup targets need twoway or fourway pairing", ErrBadMixup)
	}
	return nil
}

// InfoNCE averages the configured pairwise loss terms over the batch list.
func InfoNCE(batches []*mat.Dense, opts MultiOptions) (float64, error) {
	if err := opts.Validate(len(batches)); err != nil {
		return 0, err
	}

	var total float64
	var terms int
	err := forEachTerm(batches, opts, func(i, j int, weight float64) error {
		l, err := UniInfoNCE(batches[i], batches[j], opts.pairOptions(i, j))
		if err != nil {
			return err
		}
		total += weight * l
		terms++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total / float64(terms), nil
}

// InfoNCEGrad mirrors InfoNCE and accumulates the gradient for every batch.
func InfoNCEGrad(batches []*mat.Dense, opts MultiOptions) (float64, []*mat.Dense, error) {
	if err := opts.Validate(len(batches)); err != nil {
		return 0, nil, err
	}

	grads := make([]*mat.Dense, len(batches))
	for i, z := range batches {
		r, c := z.Dims()
		grads[i] = mat.NewDense(r, c, nil)
	}

	var total float64
	var terms int
	type contribution struct {
		i, j   int
		weight float64
		g      Grads
	}
	var contribs []contribution

	err := forEachTerm(batches, opts, func(i, j int, weight float64) error {
		l, g, err := UniInfoNCEGrad(batches[i], batches[j], opts.pairOptions(i, j))
		if err != nil {
			return err
		}
		total += weight * l
		contribs = append(contribs, contribution{i: i, j: j, weight: weight, g: g})
		terms++
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	scale := 1 / float64(terms)
	for _, c := range contribs {
		addScaled(grads[c.i], c.g.Z1, c.weight*scale)
		addScaled(grads[c.j], c.g.Z2, c.weight*scale)
	}
	return total * scale, grads, nil
}

// forEachTerm walks the pairing implied by the mode flags, invoking fn with
// the batch indices and the term weight.
func forEachTerm(batches []*mat.Dense, opts MultiOptions, fn func(i, j int, weight float64) error) error {
	switch {
	case opts.TwoWay:
		for j := 1; j < len(batches); j++ {
			if err := fn(0, j, opts.weight(j-1)); err != nil {
				return err
			}
		}
	case opts.FourWay:
		for j := 1; j < len(batches); j++ {
			w := opts.weight(j - 1)
			if err := fn(0, j, w); err != nil {
				return err
			}
			if err := fn(j, 0, w); err != nil {
				return err
			}
		}
	default:
		for i := range batches {
			for j := range batches {
				if i == j {
					continue
				}
				if err := fn(i, j, 1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// pairOptions derives the primitive's options for one term. The default
// all-pairs mode uses the symmetric combined pool and plain identity labels;
// twoway and fourway compare directly and carry the mixup targets.
func (o MultiOptions) pairOptions(i, j int) Options {
	opts := Options{
		Temperature: o.Temperature,
		Kind:        o.Kind,
	}
	if o.TwoWay || o.FourWay {
		opts.Mixup = o.Mixup
	} else {
		opts.BothSides = true
	}
	return opts
}

func (o MultiOptions) weight(idx int) float64 {
	if o.Weights == nil {
		return 1
	}
	return o.Weights[idx]
}

func addScaled(dst, src *mat.Dense, scale float64) {
	rows, cols := dst.Dims()
	for i := 0; i < rows; i++ {
		d := dst.RawRowView(i)
		s := src.RawRowView(i)
		for j := 0; j < cols; j++ {
			d[j] += scale * s[j]
		}
	}
}
