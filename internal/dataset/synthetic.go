package dataset

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// SyntheticConfig shapes a generated cohort with crossmodal structure:
// every modality's features cluster around shared per-type centroids, so a
// working pipeline should recover the pairing.
type SyntheticConfig struct {
	Entities int
	NumTypes int
	Dims     map[string]int // modality → feature dimension
	Tasks    []string

	// TaskDim is the statement-feature dimension for downstream tasks. The
	// probes embed the statements with the report-modality encoder, so it
	// defaults to that modality's feature dimension.
	TaskDim   int
	Noise     float64
	Unlabeled float64 // fraction of task rows carrying the -1 sentinel
	Seed      int64
}

// NewSynthetic generates a cohort and wraps it in the in-memory handler.
// Used by the validate mode and by tests.
func NewSynthetic(cfg Config, syn SyntheticConfig) (*InMemory, error) {
	if syn.Entities <= 0 || syn.NumTypes <= 0 || len(syn.Dims) == 0 {
		return nil, fmt.Errorf("%w: entities=%d types=%d modalities=%d",
			ErrBadShape, syn.Entities, syn.NumTypes, len(syn.Dims))
	}
	if syn.Noise <= 0 {
		syn.Noise = 0.1
	}
	if syn.TaskDim <= 0 {
		if dim, ok := syn.Dims["reports"]; ok {
			syn.TaskDim = dim
		} else {
			syn.TaskDim = 8
		}
	}
	rng := rand.New(rand.NewSource(syn.Seed))

	sites := []string{"A7", "BH", "C8", "D8", "E2"}
	ids := make([]string, syn.Entities)
	types := make([]int, syn.Entities)
	for i := range ids {
		types[i] = rng.Intn(syn.NumTypes)
		ids[i] = fmt.Sprintf("TCGA-%s-%04X", sites[rng.Intn(len(sites))], i)
	}

	features := make(map[string]*mat.Dense, len(syn.Dims))
	for name, dim := range syn.Dims {
		if dim <= syn.NumTypes {
			return nil, fmt.Errorf("%w: modality %q dim %d too small for %d types",
				ErrBadShape, name, dim, syn.NumTypes)
		}
		centroids := mat.NewDense(syn.NumTypes, dim, nil)
		for c := 0; c < syn.NumTypes; c++ {
			for j := 0; j < dim; j++ {
				centroids.Set(c, j, rng.NormFloat64())
			}
		}
		m := mat.NewDense(syn.Entities, dim, nil)
		for i := 0; i < syn.Entities; i++ {
			base := centroids.RawRowView(types[i])
			row := m.RawRowView(i)
			for j := 0; j < dim; j++ {
				// per-entity offset shared across modalities via the index
				row[j] = base[j] + syn.Noise*rng.NormFloat64() + 0.05*float64(i%7)
			}
		}
		features[name] = m
	}

	tasks := make(map[string][]float64, len(syn.Tasks))
	taskPairs := make(map[string]Pair, len(syn.Tasks))
	for _, task := range syn.Tasks {
		truth := make([]float64, syn.Entities)
		pos := mat.NewDense(syn.Entities, syn.TaskDim, nil)
		neg := mat.NewDense(syn.Entities, syn.TaskDim, nil)
		for i := 0; i < syn.Entities; i++ {
			switch {
			case rng.Float64() < syn.Unlabeled:
				truth[i] = Unlabeled
			case types[i]%2 == 0:
				truth[i] = 1
			default:
				truth[i] = 0
			}
			for j := 0; j < syn.TaskDim; j++ {
				pos.Set(i, j, rng.NormFloat64())
				neg.Set(i, j, rng.NormFloat64())
			}
		}
		tasks[task] = truth
		taskPairs[task] = Pair{Pos: pos, Neg: neg}
	}

	typeNames := make([]string, syn.NumTypes)
	for c := range typeNames {
		typeNames[c] = fmt.Sprintf("t%02d", c)
	}
	return NewInMemory(cfg, ids, features, types, typeNames, tasks, taskPairs)
}
