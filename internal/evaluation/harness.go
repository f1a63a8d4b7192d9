// Package evaluation measures a trained model: crossmodal retrieval accuracy
// and loss per ordered modality pair, summed confusion matrices, balanced
// by-type and by-site passes, zero-shot AUROC probes against task statement
// embeddings, and the full embedding dump.
package evaluation

import (
	"math"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/contrastive"
	"github.com/objones25/oncoclip/internal/dataset"
	"github.com/objones25/oncoclip/internal/distance"
	"github.com/objones25/oncoclip/internal/encoder"
	"github.com/objones25/oncoclip/internal/monitor"
	"github.com/objones25/oncoclip/internal/retrieval"
)

// Config controls one evaluation pass.
type Config struct {
	Kind        distance.Kind
	Temperature float64
	BatchSize   int
	Reps        int

	// Expensive adds the by-type and by-site balanced passes and the
	// downstream AUROC probes.
	Expensive bool

	Tasks          []string
	ReportModality string

	// OutDir receives per-task prediction CSVs and embedding dumps when
	// non-empty.
	OutDir string

	// CacheSize bounds the per-evaluation embedding cache (entries).
	CacheSize int

	// Run labels the exported metrics.
	Run string
}

// DefaultConfig returns the cheap-mode configuration.
func DefaultConfig() Config {
	return Config{
		Kind:           distance.Cosine,
		Temperature:    0.1,
		BatchSize:      64,
		Reps:           1,
		ReportModality: "reports",
		CacheSize:      4096,
		Run:            "run",
	}
}

// PairStats aggregates the retrieval passes for one ordered modality pair.
type PairStats struct {
	Query string
	Key   string

	Accuracy float64
	Loss     float64

	// Confusion is the count matrix summed over all batches and repetitions.
	Confusion *mat.Dense

	// ClassAccuracy is the mean per-class within-class accuracy, ignoring
	// classes that never appeared. MeanSupport averages the per-class row
	// counts the same way.
	ClassAccuracy float64
	MeanSupport   float64

	// ByType and BySite hold the balanced-pass accuracies in expensive mode,
	// NaN otherwise.
	ByType float64
	BySite float64
}

// Report is the result of one evaluation pass.
type Report struct {
	Pairs []PairStats

	// AUROC maps "task/modality" to the zero-shot probe score.
	AUROC map[string]float64
}

// Harness runs evaluation passes over a handler and a set of encoders.
type Harness struct {
	cfg      Config
	data     dataset.Handler
	encoders map[string]encoder.Encoder
	log      zerolog.Logger
	cache    *lru.Cache[string, []float64]
}

// New validates the configuration and builds the harness.
func New(cfg Config, data dataset.Handler, encoders map[string]encoder.Encoder, log zerolog.Logger) (*Harness, error) {
	if cfg.Reps <= 0 {
		cfg.Reps = 1
	}
	if cfg.BatchSize <= 0 {
		return nil, NewEvalError("new", dataset.ErrBadShape, "non-positive batch size")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	for _, mod := range data.Modalities() {
		if _, ok := encoders[mod]; !ok {
			return nil, NewEvalError("new", ErrMissingModality, mod)
		}
	}
	cache, err := lru.New[string, []float64](cfg.CacheSize)
	if err != nil {
		return nil, NewEvalError("new", err, "embedding cache")
	}
	return &Harness{cfg: cfg, data: data, encoders: encoders, log: log, cache: cache}, nil
}

// Evaluate runs the configured passes over the held-out split. Encoder
// weights may have changed since the last call, so the embedding cache only
// lives for the duration of one pass.
func (h *Harness) Evaluate(epoch int) (Report, error) {
	start := time.Now()
	h.cache.Purge()
	for _, enc := range h.encoders {
		enc.SetTraining(false)
	}

	mods := append([]string(nil), h.data.Modalities()...)
	sort.Strings(mods)

	report := Report{AUROC: make(map[string]float64)}
	for _, q := range mods {
		for _, k := range mods {
			if q == k {
				continue
			}
			stats, err := h.evaluatePair(q, k)
			if err != nil {
				return Report{}, err
			}
			report.Pairs = append(report.Pairs, stats)
			monitor.RetrievalAccuracy.WithLabelValues(h.cfg.Run, q, k).Set(stats.Accuracy)

			h.log.Info().
				Int("epoch", epoch).
				Str("query", q).Str("key", k).
				Float64("accuracy", stats.Accuracy).
				Float64("loss", stats.Loss).
				Float64("class_accuracy", stats.ClassAccuracy).
				Msg("retrieval pass")
		}
	}

	if h.cfg.Expensive {
		if err := h.runProbes(epoch, mods, &report); err != nil {
			return Report{}, err
		}
	}

	mode := "cheap"
	if h.cfg.Expensive {
		mode = "expensive"
	}
	monitor.EvalLatency.WithLabelValues(h.cfg.Run, mode).Observe(time.Since(start).Seconds())
	return report, nil
}

// evaluatePair runs reps × batches of (accuracy, loss, confusion) for one
// ordered modality pair and aggregates.
func (h *Harness) evaluatePair(q, k string) (PairStats, error) {
	numClasses := h.data.NumTypes()
	stats := PairStats{
		Query:     q,
		Key:       k,
		Confusion: mat.NewDense(numClasses, numClasses, nil),
		ByType:    math.NaN(),
		BySite:    math.NaN(),
	}

	classAccSum := make([]float64, numClasses)
	classAccN := make([]int, numClasses)
	supportSum := make([]float64, numClasses)
	supportN := make([]int, numClasses)

	var accSum, lossSum float64
	var batches int
	for rep := 0; rep < h.cfg.Reps; rep++ {
		split, err := h.data.ClipTest(h.cfg.BatchSize, true)
		if err != nil {
			return PairStats{}, NewEvalError("evaluate", err, q+"->"+k)
		}
		for _, b := range split {
			zq, err := h.embed(q, b)
			if err != nil {
				return PairStats{}, err
			}
			zk, err := h.embed(k, b)
			if err != nil {
				return PairStats{}, err
			}

			acc, err := retrieval.Accuracy(h.cfg.Kind, zq, zk, retrieval.Options{})
			if err != nil {
				return PairStats{}, NewEvalError("accuracy", err, q+"->"+k)
			}
			loss, err := contrastive.InfoNCE([]*mat.Dense{zq, zk}, contrastive.MultiOptions{
				Temperature: h.cfg.Temperature,
				Kind:        h.cfg.Kind,
			})
			if err != nil {
				return PairStats{}, NewEvalError("loss", err, q+"->"+k)
			}
			conf, err := retrieval.Confusion(h.cfg.Kind, zq, zk, b.Types, numClasses)
			if err != nil {
				return PairStats{}, NewEvalError("confusion", err, q+"->"+k)
			}

			accSum += acc
			lossSum += loss
			batches++
			stats.Confusion.Add(stats.Confusion, conf.Counts)
			for c := 0; c < numClasses; c++ {
				if !math.IsNaN(conf.ClassAccuracy[c]) {
					classAccSum[c] += conf.ClassAccuracy[c]
					classAccN[c]++
				}
				if conf.ClassSupport[c] > 0 {
					supportSum[c] += float64(conf.ClassSupport[c])
					supportN[c]++
				}
			}
		}
	}
	if batches == 0 {
		return PairStats{}, NewEvalError("evaluate", dataset.ErrBadShape, "empty held-out split")
	}

	stats.Accuracy = accSum / float64(batches)
	stats.Loss = lossSum / float64(batches)
	stats.ClassAccuracy = nanMean(classAccSum, classAccN)
	stats.MeanSupport = nanMean(supportSum, supportN)

	if h.cfg.Expensive {
		byType, err := h.balancedAccuracy(q, k, func() ([]dataset.Batch, error) {
			return h.data.ByType(h.cfg.BatchSize, 0, "test", h.cfg.Reps)
		})
		if err != nil {
			return PairStats{}, err
		}
		bySite, err := h.balancedAccuracy(q, k, func() ([]dataset.Batch, error) {
			return h.data.BySite(h.cfg.BatchSize, "test", h.cfg.Reps)
		})
		if err != nil {
			return PairStats{}, err
		}
		stats.ByType = byType
		stats.BySite = bySite
	}
	return stats, nil
}

// balancedAccuracy averages plain retrieval accuracy over a balanced batch
// stream. Balanced batches sample with replacement, so they bypass the cache.
func (h *Harness) balancedAccuracy(q, k string, load func() ([]dataset.Batch, error)) (float64, error) {
	split, err := load()
	if err != nil {
		return 0, NewEvalError("balanced", err, q+"->"+k)
	}
	if len(split) == 0 {
		return math.NaN(), nil
	}
	var sum float64
	for _, b := range split {
		zq, err := h.forward(q, b)
		if err != nil {
			return 0, err
		}
		zk, err := h.forward(k, b)
		if err != nil {
			return 0, err
		}
		acc, err := retrieval.Accuracy(h.cfg.Kind, zq, zk, retrieval.Options{})
		if err != nil {
			return 0, NewEvalError("balanced", err, q+"->"+k)
		}
		sum += acc
	}
	return sum / float64(len(split)), nil
}

// embed returns the batch's embeddings for one modality, serving whole
// batches from the cache when every row was already computed this pass.
func (h *Harness) embed(mod string, b dataset.Batch) (*mat.Dense, error) {
	enc := h.encoders[mod]
	cached := mat.NewDense(b.Len(), enc.OutputDim(), nil)
	hit := true
	for i, id := range b.IDs {
		row, ok := h.cache.Get(mod + "/" + id)
		if !ok {
			hit = false
			break
		}
		cached.SetRow(i, row)
	}
	if hit {
		monitor.CacheHits.WithLabelValues(h.cfg.Run).Add(float64(b.Len()))
		return cached, nil
	}
	monitor.CacheMisses.WithLabelValues(h.cfg.Run).Add(float64(b.Len()))

	z, err := h.forward(mod, b)
	if err != nil {
		return nil, err
	}
	for i, id := range b.IDs {
		h.cache.Add(mod+"/"+id, append([]float64(nil), z.RawRowView(i)...))
	}
	return z, nil
}

func (h *Harness) forward(mod string, b dataset.Batch) (*mat.Dense, error) {
	x, ok := b.Inputs[mod]
	if !ok {
		return nil, NewEvalError("forward", dataset.ErrUnknownModality, mod)
	}
	z, err := h.encoders[mod].Forward(x)
	if err != nil {
		return nil, NewEvalError("forward", err, mod)
	}
	return z, nil
}

// nanMean averages sums over their observation counts, skipping entries that
// never appeared.
func nanMean(sums []float64, counts []int) float64 {
	var total float64
	var n int
	for i, c := range counts {
		if c == 0 {
			continue
		}
		total += sums[i] / float64(c)
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return total / float64(n)
}
