package retrieval

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// RenderConfusion formats a count matrix normalized per column (each column
// sums to 1) as a fixed-width table. Cells show figs significant digits with
// the leading zero stripped for values below one; columns with zero support
// render as "nan". Label names default to 1-based indices.
func RenderConfusion(counts *mat.Dense, labelNames []string, figs int) string {
	n, _ := counts.Dims()
	if figs <= 0 {
		figs = 3
	}

	colSums := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			colSums[j] += counts.At(i, j)
		}
	}

	name := func(i int) string {
		if labelNames != nil {
			return labelNames[i]
		}
		return fmt.Sprintf("%d", i+1)
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", figs+1))
	for j := 0; j < n; j++ {
		b.WriteString(" ")
		fmt.Fprintf(&b, "%*s", figs+1, name(j))
	}
	b.WriteString("\n")

	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%*s", figs+1, name(i))
		for j := 0; j < n; j++ {
			b.WriteString(" ")
			b.WriteString(renderCell(counts.At(i, j), colSums[j], figs))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderCell(count, colSum float64, figs int) string {
	if colSum == 0 {
		return fmt.Sprintf("%*s", figs+1, "nan")
	}
	v := count / colSum
	if math.IsNaN(v) {
		return fmt.Sprintf("%*s", figs+1, "nan")
	}
	if v >= 1 {
		return fmt.Sprintf("%.*f", figs-1, v)
	}
	// strip the leading zero so ".500" fits the cell
	s := fmt.Sprintf("%.*f", figs, v)
	return s[1:]
}
