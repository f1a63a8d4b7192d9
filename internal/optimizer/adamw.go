// Package optimizer provides the AdamW optimizer over named parameter
// tensors, plus global gradient-norm clipping. A parameter couples a value
// matrix with its accumulated gradient; encoders expose their parameters as
// groups and the training loop steps one optimizer per group.
package optimizer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNoParams is returned when an optimizer is built over an empty group.
var ErrNoParams = errors.New("optimizer needs at least one parameter")

// Param couples a parameter tensor with its gradient accumulator.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParam allocates a parameter with a zeroed gradient.
func NewParam(name string, rows, cols int, data []float64) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, data),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// AdamWConfig mirrors the usual AdamW hyperparameters with decoupled weight
// decay.
type AdamWConfig struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
}

// DefaultAdamWConfig returns the hyperparameters used for pretraining.
func DefaultAdamWConfig() AdamWConfig {
	return AdamWConfig{
		LR:          0.001,
		Beta1:       0.9,
		Beta2:       0.999,
		Epsilon:     1e-8,
		WeightDecay: 0.001,
	}
}

// AdamW holds first/second moment estimates per parameter.
type AdamW struct {
	cfg    AdamWConfig
	params []*Param
	m      []*mat.Dense
	v      []*mat.Dense
	step   int
}

// NewAdamW builds an optimizer over one parameter group.
func NewAdamW(params []*Param, cfg AdamWConfig) (*AdamW, error) {
	if len(params) == 0 {
		return nil, ErrNoParams
	}
	if cfg.Beta1 <= 0 || cfg.Beta1 >= 1 || cfg.Beta2 <= 0 || cfg.Beta2 >= 1 {
		return nil, fmt.Errorf("invalid betas: %v, %v", cfg.Beta1, cfg.Beta2)
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-8
	}

	o := &AdamW{cfg: cfg, params: params}
	for _, p := range params {
		r, c := p.Value.Dims()
		o.m = append(o.m, mat.NewDense(r, c, nil))
		o.v = append(o.v, mat.NewDense(r, c, nil))
	}
	return o, nil
}

// SetLR is the scheduler hook: it applies lr to every parameter group.
func (o *AdamW) SetLR(lr float64) { o.cfg.LR = lr }

// LR returns the current learning rate.
func (o *AdamW) LR() float64 { return o.cfg.LR }

// Params returns the bound parameter group.
func (o *AdamW) Params() []*Param { return o.params }

// Step applies one AdamW update from the accumulated gradients.
func (o *AdamW) Step() {
	o.step++
	bc1 := 1 - math.Pow(o.cfg.Beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.cfg.Beta2, float64(o.step))

	for i, p := range o.params {
		val := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		m := o.m[i].RawMatrix().Data
		v := o.v[i].RawMatrix().Data

		for k := range val {
			g := grad[k]
			m[k] = o.cfg.Beta1*m[k] + (1-o.cfg.Beta1)*g
			v[k] = o.cfg.Beta2*v[k] + (1-o.cfg.Beta2)*g*g

			mHat := m[k] / bc1
			vHat := v[k] / bc2

			// decoupled weight decay, applied directly to the value
			val[k] -= o.cfg.LR * (mHat/(math.Sqrt(vHat)+o.cfg.Epsilon) + o.cfg.WeightDecay*val[k])
		}
	}
}

// ZeroGrad clears every accumulated gradient.
func (o *AdamW) ZeroGrad() {
	for _, p := range o.params {
		p.Grad.Zero()
	}
}

// ClipGradNorm rescales all gradients in place so their global L2 norm does
// not exceed maxNorm, and returns the norm before clipping.
func ClipGradNorm(params []*Param, maxNorm float64) float64 {
	var sq float64
	for _, p := range params {
		data := p.Grad.RawMatrix().Data
		for _, g := range data {
			sq += g * g
		}
	}
	norm := math.Sqrt(sq)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}

	scale := maxNorm / (norm + 1e-12)
	for _, p := range params {
		p.Grad.Scale(scale, p.Grad)
	}
	return norm
}
