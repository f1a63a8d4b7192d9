package dataset

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Config controls how the in-memory handler splits its entities.
type Config struct {
	// TrainRatio is the pretrain share of the contrastive split.
	TrainRatio float64

	// FTTrainRatio is the train share of the fine-tuning split, carved out
	// of the held-out entities.
	FTTrainRatio float64

	Seed int64
}

// DefaultConfig mirrors the usual 80/50 split.
func DefaultConfig() Config {
	return Config{TrainRatio: 0.8, FTTrainRatio: 0.5, Seed: 1}
}

// InMemory is a matrix-backed Handler used by tests and the synthetic
// validation path.
type InMemory struct {
	cfg       Config
	rng       *rand.Rand
	ids       []string
	features  map[string]*mat.Dense
	types     []int
	typeNames []string
	tasks     map[string][]float64
	taskPairs map[string]Pair

	modalities []string
	taskNames  []string

	pretrainIdx []int
	clipTestIdx []int
	ftTrainIdx  []int
	ftTestIdx   []int
}

// NewInMemory validates shapes and cuts the splits once.
func NewInMemory(cfg Config, ids []string, features map[string]*mat.Dense, types []int,
	typeNames []string, tasks map[string][]float64, taskPairs map[string]Pair) (*InMemory, error) {

	n := len(ids)
	if n == 0 {
		return nil, fmt.Errorf("%w: no entities", ErrBadShape)
	}
	if len(types) != n {
		return nil, fmt.Errorf("%w: %d types for %d entities", ErrBadShape, len(types), n)
	}
	var modalities []string
	for name, m := range features {
		r, _ := m.Dims()
		if r != n {
			return nil, fmt.Errorf("%w: modality %q has %d rows for %d entities", ErrBadShape, name, r, n)
		}
		modalities = append(modalities, name)
	}
	var taskNames []string
	for name, truth := range tasks {
		if len(truth) != n {
			return nil, fmt.Errorf("%w: task %q has %d labels for %d entities", ErrBadShape, name, len(truth), n)
		}
		taskNames = append(taskNames, name)
	}
	if cfg.TrainRatio <= 0 || cfg.TrainRatio >= 1 {
		return nil, fmt.Errorf("%w: train ratio %v", ErrBadShape, cfg.TrainRatio)
	}

	h := &InMemory{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		ids:        ids,
		features:   features,
		types:      types,
		typeNames:  typeNames,
		tasks:      tasks,
		taskPairs:  taskPairs,
		modalities: modalities,
		taskNames:  taskNames,
	}

	perm := h.rng.Perm(n)
	cut := int(cfg.TrainRatio * float64(n))
	h.pretrainIdx = append([]int(nil), perm[:cut]...)
	h.clipTestIdx = append([]int(nil), perm[cut:]...)

	ftCut := int(cfg.FTTrainRatio * float64(len(h.clipTestIdx)))
	h.ftTrainIdx = append([]int(nil), h.clipTestIdx[:ftCut]...)
	h.ftTestIdx = append([]int(nil), h.clipTestIdx[ftCut:]...)
	return h, nil
}

func (h *InMemory) Modalities() []string { return h.modalities }

func (h *InMemory) Dim(modality string) (int, error) {
	m, ok := h.features[modality]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownModality, modality)
	}
	_, cols := m.Dims()
	return cols, nil
}
func (h *InMemory) NumTypes() int       { return len(h.typeNames) }
func (h *InMemory) TypeNames() []string { return h.typeNames }
func (h *InMemory) Tasks() []string     { return h.taskNames }

func (h *InMemory) Pretrain(batchSize int, shuffle bool) ([]Batch, error) {
	return h.batches(h.pretrainIdx, batchSize, shuffle)
}

func (h *InMemory) ClipTest(batchSize int, shuffle bool) ([]Batch, error) {
	return h.batches(h.clipTestIdx, batchSize, shuffle)
}

func (h *InMemory) ByType(batchSize, selectSize int, split string, reps int) ([]Batch, error) {
	var pool []int
	switch split {
	case "pretrain":
		pool = h.pretrainIdx
	case "test":
		pool = h.clipTestIdx
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplit, split)
	}
	if reps <= 0 {
		reps = 1
	}

	byType := make(map[int][]int)
	for _, i := range pool {
		byType[h.types[i]] = append(byType[h.types[i]], i)
	}

	var classes []int
	if selectSize > 0 {
		for i := 0; i < selectSize; i++ {
			classes = append(classes, h.rng.Intn(len(h.typeNames)))
		}
		reps = 1
	} else {
		for c := 0; c < len(h.typeNames); c++ {
			classes = append(classes, c)
		}
	}

	var out []Batch
	for r := 0; r < reps; r++ {
		for _, c := range classes {
			members := byType[c]
			if len(members) == 0 {
				continue
			}
			idx := make([]int, batchSize)
			for i := range idx {
				idx[i] = members[h.rng.Intn(len(members))]
			}
			out = append(out, h.gather(idx))
		}
	}
	return out, nil
}

func (h *InMemory) BySite(batchSize int, split string, reps int) ([]Batch, error) {
	var pool []int
	switch split {
	case "pretrain":
		pool = h.pretrainIdx
	case "test":
		pool = h.clipTestIdx
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplit, split)
	}
	if reps <= 0 {
		reps = 1
	}

	bySite := make(map[string][]int)
	var sites []string
	for _, i := range pool {
		s := SiteOf(h.ids[i])
		if _, ok := bySite[s]; !ok {
			sites = append(sites, s)
		}
		bySite[s] = append(bySite[s], i)
	}
	sort.Strings(sites)

	var out []Batch
	for r := 0; r < reps; r++ {
		for _, s := range sites {
			members := bySite[s]
			idx := make([]int, batchSize)
			for i := range idx {
				idx[i] = members[h.rng.Intn(len(members))]
			}
			out = append(out, h.gather(idx))
		}
	}
	return out, nil
}

func (h *InMemory) ValTrain(task string, batchSize int) ([]Batch, error) {
	if _, ok := h.tasks[task]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	return h.batches(h.ftTrainIdx, batchSize, true)
}

func (h *InMemory) ValTest(task string, batchSize int) ([]Batch, error) {
	if _, ok := h.tasks[task]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	return h.batches(h.ftTestIdx, batchSize, true)
}

// Mixup blends the batch inputs with a permuted copy of themselves. The
// blend weight is drawn from Beta(scale, scale), the usual mixup prior.
func (h *InMemory) Mixup(b Batch, scale float64) ([]int, float64, Batch, error) {
	if scale <= 0 {
		return nil, 0, Batch{}, fmt.Errorf("%w: mixup scale %v", ErrBadShape, scale)
	}
	n := b.Len()
	perm := h.rng.Perm(n)
	lam := distuv.Beta{Alpha: scale, Beta: scale}.Rand()

	mixed := Batch{
		IDs:       b.IDs,
		Types:     b.Types,
		Tasks:     b.Tasks,
		TaskPairs: b.TaskPairs,
		Inputs:    make(map[string]*mat.Dense, len(b.Inputs)),
	}
	for name, x := range b.Inputs {
		rows, cols := x.Dims()
		out := mat.NewDense(rows, cols, nil)
		for i := 0; i < rows; i++ {
			src := x.RawRowView(i)
			alt := x.RawRowView(perm[i])
			dst := out.RawRowView(i)
			for j := 0; j < cols; j++ {
				dst[j] = (1-lam)*src[j] + lam*alt[j]
			}
		}
		mixed.Inputs[name] = out
	}
	return perm, lam, mixed, nil
}

// batches cuts the index list into minibatches; the trailing partial batch
// is kept.
func (h *InMemory) batches(idx []int, batchSize int, shuffle bool) ([]Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrBadShape, batchSize)
	}
	order := append([]int(nil), idx...)
	if shuffle {
		h.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	var out []Batch
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		out = append(out, h.gather(order[start:end]))
	}
	return out, nil
}

// gather materializes one batch from entity indices.
func (h *InMemory) gather(idx []int) Batch {
	b := Batch{
		IDs:       make([]string, len(idx)),
		Types:     make([]int, len(idx)),
		Inputs:    make(map[string]*mat.Dense, len(h.features)),
		Tasks:     make(map[string][]float64, len(h.tasks)),
		TaskPairs: make(map[string]Pair, len(h.taskPairs)),
	}
	for i, e := range idx {
		b.IDs[i] = h.ids[e]
		b.Types[i] = h.types[e]
	}
	for name, m := range h.features {
		_, cols := m.Dims()
		out := mat.NewDense(len(idx), cols, nil)
		for i, e := range idx {
			out.SetRow(i, m.RawRowView(e))
		}
		b.Inputs[name] = out
	}
	for name, truth := range h.tasks {
		vals := make([]float64, len(idx))
		for i, e := range idx {
			vals[i] = truth[e]
		}
		b.Tasks[name] = vals
	}
	for name, pair := range h.taskPairs {
		_, cols := pair.Pos.Dims()
		pos := mat.NewDense(len(idx), cols, nil)
		neg := mat.NewDense(len(idx), cols, nil)
		for i, e := range idx {
			pos.SetRow(i, pair.Pos.RawRowView(e))
			neg.SetRow(i, pair.Neg.RawRowView(e))
		}
		b.TaskPairs[name] = Pair{Pos: pos, Neg: neg}
	}
	return b
}
