// Package encoder defines the per-modality encoder contract consumed by the
// training loop and evaluation harness, and provides feed-forward reference
// implementations with hand-derived backpropagation for modalities whose
// features arrive as fixed-length vectors.
package encoder

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/optimizer"
)

var (
	// ErrBadInput is returned when a batch does not match the encoder's
	// input dimension
	ErrBadInput = errors.New("input dimension mismatch")

	// ErrNoForwardCache is returned when Backward runs without a cached
	// training-mode forward pass
	ErrNoForwardCache = errors.New("backward without cached forward pass")
)

// Encoder maps a feature batch to a representation batch. Backward
// accumulates parameter gradients from an upstream gradient on the output
// embeddings; only training-mode forwards cache activations.
type Encoder interface {
	Forward(x *mat.Dense) (*mat.Dense, error)
	Backward(upstream *mat.Dense) error
	Params() []*optimizer.Param
	SetTraining(training bool)
	Clone() Encoder
	InputDim() int
	OutputDim() int
}
