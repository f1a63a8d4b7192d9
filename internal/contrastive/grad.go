package contrastive

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/distance"
)

// Grads holds the loss gradient with respect to each input batch.
type Grads struct {
	Z1 *mat.Dense
	Z2 *mat.Dense
}

// UniInfoNCEGrad computes the two-batch loss together with its gradient
// with respect to both embedding batches. Duplicate collapsing is an
// evaluation-only path and has no gradient.
func UniInfoNCEGrad(z1, z2 *mat.Dense, opts Options) (float64, Grads, error) {
	if opts.RemoveDuplicates {
		return 0, Grads{}, ErrGradUnsupported
	}

	st, err := prepare(z1, z2, opts)
	if err != nil {
		return 0, Grads{}, err
	}
	loss := st.loss()

	h := st.logitGrad()
	h.Scale(1/st.opts.Temperature, h) // chain through logits = sim/τ

	var g1, g2 *mat.Dense
	switch st.opts.Kind {
	case distance.Cosine:
		g1, g2 = cosineGrad(st, h)
	default:
		g1, g2 = euclideanGrad(st, h)
	}
	return loss, Grads{Z1: g1, Z2: g2}, nil
}

// logitGrad returns ∂loss/∂logits: (softmax − blended one-hot) / rows.
func (st *lossState) logitGrad() *mat.Dense {
	rows, _ := st.logits.Dims()
	g := mat.DenseCopyOf(st.probs)

	w, lam := 1.0, 0.0
	if st.perm != nil {
		lam = st.opts.Mixup.Lam
		w = 1 - lam
	}
	for i := 0; i < rows; i++ {
		g.Set(i, st.labels[i], g.At(i, st.labels[i])-w)
		if st.perm != nil {
			g.Set(i, st.perm[i], g.At(i, st.perm[i])-lam)
		}
	}
	g.Scale(1/float64(rows), g)
	return g
}

// cosineGrad backpropagates through Â·B̂ᵀ and the row normalizations.
func cosineGrad(st *lossState, h *mat.Dense) (*mat.Dense, *mat.Dense) {
	if st.pooled {
		pHat := distance.NormalizeRows(st.a)
		rows, cols := st.a.Dims()

		// sim = P̂ P̂ᵀ, so the pool receives both row and column terms.
		up := mat.NewDense(rows, cols, nil)
		up.Mul(h, pHat)
		tmp := mat.NewDense(rows, cols, nil)
		tmp.Mul(h.T(), pHat)
		up.Add(up, tmp)

		gp := normalizeBackprop(st.a, up)
		return splitRows(gp, st.poolRows)
	}

	aHat := distance.NormalizeRows(st.a)
	bHat := distance.NormalizeRows(st.b)

	ra, c := st.a.Dims()
	rb, _ := st.b.Dims()
	upA := mat.NewDense(ra, c, nil)
	upA.Mul(h, bHat)
	upB := mat.NewDense(rb, c, nil)
	upB.Mul(h.T(), aHat)

	return normalizeBackprop(st.a, upA), normalizeBackprop(st.b, upB)
}

// euclideanGrad backpropagates through 2ABᵀ − ‖aᵢ‖²·1ᵀ − 1·‖bⱼ‖²ᵀ.
func euclideanGrad(st *lossState, h *mat.Dense) (*mat.Dense, *mat.Dense) {
	if st.pooled {
		rows, cols := st.a.Dims()
		sym := mat.NewDense(rows, rows, nil)
		sym.Add(h, h.T())

		gp := mat.NewDense(rows, cols, nil)
		gp.Mul(sym, st.a)
		gp.Scale(2, gp)

		rowSums := sumRows(sym)
		subtractScaledRows(gp, st.a, rowSums)
		return splitRows(gp, st.poolRows)
	}

	ra, c := st.a.Dims()
	rb, _ := st.b.Dims()

	ga := mat.NewDense(ra, c, nil)
	ga.Mul(h, st.b)
	ga.Scale(2, ga)
	subtractScaledRows(ga, st.a, sumRows(h))

	gb := mat.NewDense(rb, c, nil)
	gb.Mul(h.T(), st.a)
	gb.Scale(2, gb)
	subtractScaledRows(gb, st.b, sumCols(h))

	return ga, gb
}

// normalizeBackprop maps an upstream gradient on â = z/‖z‖ back to z:
// dz = (u − (u·â)â)/‖z‖. Zero rows pass the gradient through unchanged,
// matching NormalizeRows leaving them untouched.
func normalizeBackprop(raw, upstream *mat.Dense) *mat.Dense {
	rows, cols := raw.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		z := raw.RawRowView(i)
		u := upstream.RawRowView(i)
		dst := out.RawRowView(i)
		norm := floats.Norm(z, 2)
		if norm == 0 {
			copy(dst, u)
			continue
		}
		var dot float64
		for j := 0; j < cols; j++ {
			dot += u[j] * z[j] / norm
		}
		for j := 0; j < cols; j++ {
			dst[j] = (u[j] - dot*z[j]/norm) / norm
		}
	}
	return out
}

// subtractScaledRows applies dst[i] -= 2·scale[i]·src[i].
func subtractScaledRows(dst, src *mat.Dense, scale []float64) {
	rows, cols := dst.Dims()
	for i := 0; i < rows; i++ {
		d := dst.RawRowView(i)
		s := src.RawRowView(i)
		for j := 0; j < cols; j++ {
			d[j] -= 2 * scale[i] * s[j]
		}
	}
}

func sumRows(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		var sum float64
		for j := 0; j < cols; j++ {
			sum += row[j]
		}
		out[i] = sum
	}
	return out
}

func sumCols(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, cols)
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		for j := 0; j < cols; j++ {
			out[j] += row[j]
		}
	}
	return out
}

// splitRows divides a pooled gradient back into the z1 and z2 blocks.
func splitRows(pooled *mat.Dense, n int) (*mat.Dense, *mat.Dense) {
	rows, cols := pooled.Dims()
	top := mat.NewDense(n, cols, nil)
	bottom := mat.NewDense(rows-n, cols, nil)
	top.Copy(pooled.Slice(0, n, 0, cols))
	bottom.Copy(pooled.Slice(n, rows, 0, cols))
	return top, bottom
}
