package contrastive

import "gonum.org/v1/gonum/mat"

// CollapseDuplicates collapses exact duplicate rows of z into unique
// representatives in first-occurrence order. The second return maps every
// original row index to the index of its representative.
func CollapseDuplicates(z *mat.Dense) (*mat.Dense, []int) {
	rows, cols := z.Dims()
	mapIdx := make([]int, rows)
	var reps []int

	for i := 0; i < rows; i++ {
		found := -1
		for r, rep := range reps {
			if rowsEqual(z, i, rep, cols) {
				found = r
				break
			}
		}
		if found == -1 {
			mapIdx[i] = len(reps)
			reps = append(reps, i)
		} else {
			mapIdx[i] = found
		}
	}

	out := mat.NewDense(len(reps), cols, nil)
	for r, rep := range reps {
		for j := 0; j < cols; j++ {
			out.Set(r, j, z.At(rep, j))
		}
	}
	return out, mapIdx
}

func rowsEqual(z *mat.Dense, a, b, cols int) bool {
	for j := 0; j < cols; j++ {
		if z.At(a, j) != z.At(b, j) {
			return false
		}
	}
	return true
}
