package encoder

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/optimizer"
)

// linear is one affine layer y = xW + b with cached input for backprop.
type linear struct {
	w *optimizer.Param // in×out
	b *optimizer.Param // 1×out

	input *mat.Dense // cached training-mode input
}

func newLinear(name string, in, out int, rng *rand.Rand) *linear {
	scale := math.Sqrt(2 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return &linear{
		w: optimizer.NewParam(name+".weight", in, out, data),
		b: optimizer.NewParam(name+".bias", 1, out, nil),
	}
}

func (l *linear) forward(x *mat.Dense, cache bool) *mat.Dense {
	n, _ := x.Dims()
	_, out := l.w.Value.Dims()

	y := mat.NewDense(n, out, nil)
	y.Mul(x, l.w.Value)
	bias := l.b.Value.RawRowView(0)
	for i := 0; i < n; i++ {
		row := y.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}

	if cache {
		l.input = x
	} else {
		l.input = nil
	}
	return y
}

// backward accumulates dW and db and returns the gradient on the input.
func (l *linear) backward(upstream *mat.Dense) (*mat.Dense, error) {
	if l.input == nil {
		return nil, ErrNoForwardCache
	}
	n, in := l.input.Dims()
	_, out := l.w.Value.Dims()

	dw := mat.NewDense(in, out, nil)
	dw.Mul(l.input.T(), upstream)
	l.w.Grad.Add(l.w.Grad, dw)

	db := l.b.Grad.RawRowView(0)
	for i := 0; i < n; i++ {
		row := upstream.RawRowView(i)
		for j := range db {
			db[j] += row[j]
		}
	}

	dx := mat.NewDense(n, in, nil)
	dx.Mul(upstream, l.w.Value.T())
	return dx, nil
}

// MLP is a feed-forward encoder: hidden ReLU layers followed by a linear
// projection to the representation dimension. It fills the SimpleMLP role
// for RNA, clinical and precomputed report-feature modalities.
type MLP struct {
	name     string
	layers   []*linear
	preacts  []*mat.Dense // cached pre-activation outputs per hidden layer
	training bool
	in, out  int
}

// NewMLP builds an encoder with the given hidden sizes. A nil or empty
// hidden list yields a plain linear projection.
func NewMLP(name string, inputDim int, hidden []int, reprDim int, seed int64) (*MLP, error) {
	if inputDim <= 0 || reprDim <= 0 {
		return nil, fmt.Errorf("%w: input %d, repr %d", ErrBadInput, inputDim, reprDim)
	}
	rng := rand.New(rand.NewSource(seed))

	m := &MLP{name: name, in: inputDim, out: reprDim}
	prev := inputDim
	for i, h := range hidden {
		if h <= 0 {
			return nil, fmt.Errorf("%w: hidden size %d", ErrBadInput, h)
		}
		m.layers = append(m.layers, newLinear(fmt.Sprintf("%s.hidden%d", name, i), prev, h, rng))
		prev = h
	}
	m.layers = append(m.layers, newLinear(name+".proj", prev, reprDim, rng))
	return m, nil
}

// NewLinear builds the no-hidden-layer special case, a single learned
// projection.
func NewLinear(name string, inputDim, reprDim int, seed int64) (*MLP, error) {
	return NewMLP(name, inputDim, nil, reprDim, seed)
}

// Forward runs the batch through the stack, caching activations in training
// mode so Backward can run.
func (m *MLP) Forward(x *mat.Dense) (*mat.Dense, error) {
	_, d := x.Dims()
	if d != m.in {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrBadInput, d, m.in)
	}

	m.preacts = m.preacts[:0]
	cur := x
	for i, l := range m.layers {
		y := l.forward(cur, m.training)
		if i < len(m.layers)-1 {
			if m.training {
				m.preacts = append(m.preacts, mat.DenseCopyOf(y))
			}
			reluInPlace(y)
		}
		cur = y
	}
	return cur, nil
}

// Backward accumulates parameter gradients from the upstream gradient on the
// output embeddings.
func (m *MLP) Backward(upstream *mat.Dense) error {
	if !m.training {
		return ErrNoForwardCache
	}

	grad := upstream
	for i := len(m.layers) - 1; i >= 0; i-- {
		dx, err := m.layers[i].backward(grad)
		if err != nil {
			return err
		}
		if i > 0 {
			// gate through the preceding ReLU
			maskNegative(dx, m.preacts[i-1])
		}
		grad = dx
	}
	return nil
}

// Params exposes every layer's weight and bias for the optimizer.
func (m *MLP) Params() []*optimizer.Param {
	var out []*optimizer.Param
	for _, l := range m.layers {
		out = append(out, l.w, l.b)
	}
	return out
}

// SetTraining toggles activation caching.
func (m *MLP) SetTraining(training bool) { m.training = training }

// Clone deep-copies the encoder, detaching its parameters from the original.
// The clone starts in inference mode.
func (m *MLP) Clone() Encoder {
	c := &MLP{name: m.name, in: m.in, out: m.out}
	for _, l := range m.layers {
		c.layers = append(c.layers, &linear{
			w: &optimizer.Param{
				Name:  l.w.Name,
				Value: mat.DenseCopyOf(l.w.Value),
				Grad:  mat.DenseCopyOf(l.w.Grad),
			},
			b: &optimizer.Param{
				Name:  l.b.Name,
				Value: mat.DenseCopyOf(l.b.Value),
				Grad:  mat.DenseCopyOf(l.b.Grad),
			},
		})
	}
	return c
}

func (m *MLP) InputDim() int  { return m.in }
func (m *MLP) OutputDim() int { return m.out }

func reluInPlace(m *mat.Dense) {
	data := m.RawMatrix().Data
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}

// maskNegative zeroes grad entries where the pre-activation was negative.
func maskNegative(grad, preact *mat.Dense) {
	g := grad.RawMatrix().Data
	p := preact.RawMatrix().Data
	for i := range g {
		if p[i] <= 0 {
			g[i] = 0
		}
	}
}
