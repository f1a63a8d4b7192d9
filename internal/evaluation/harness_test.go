package evaluation_test

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/contrastive"
	"github.com/objones25/oncoclip/internal/dataset"
	"github.com/objones25/oncoclip/internal/encoder"
	"github.com/objones25/oncoclip/internal/evaluation"
	"github.com/objones25/oncoclip/internal/optimizer"
	"github.com/objones25/oncoclip/test/testutil"
)

// identityEncoder passes features through unchanged, so retrieval between
// two modalities sharing a feature matrix is exact.
type identityEncoder struct{ dim int }

func (e *identityEncoder) Forward(x *mat.Dense) (*mat.Dense, error) {
	out := &mat.Dense{}
	out.CloneFrom(x)
	return out, nil
}
func (e *identityEncoder) Backward(*mat.Dense) error  { return nil }
func (e *identityEncoder) Params() []*optimizer.Param { return nil }
func (e *identityEncoder) SetTraining(bool)           {}
func (e *identityEncoder) Clone() encoder.Encoder     { return &identityEncoder{dim: e.dim} }
func (e *identityEncoder) InputDim() int              { return e.dim }
func (e *identityEncoder) OutputDim() int             { return e.dim }

func sharedFeatureCohort(t *testing.T, n, dim int) (*dataset.InMemory, map[string]encoder.Encoder) {
	t.Helper()
	rng := rand.New(rand.NewSource(3))

	feats := mat.NewDense(n, dim, nil)
	ids := make([]string, n)
	types := make([]int, n)
	truth := make([]float64, n)
	sites := []string{"A7", "BH", "C8"}
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			feats.Set(i, j, rng.NormFloat64())
		}
		ids[i] = fmt.Sprintf("TCGA-%s-%04d", sites[i%len(sites)], i)
		types[i] = i % 3
		truth[i] = float64(i % 2)
		if i%3 == 0 {
			truth[i] = dataset.Unlabeled
		}
	}
	pos := mat.NewDense(n, dim, nil)
	neg := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			pos.Set(i, j, rng.NormFloat64())
			neg.Set(i, j, rng.NormFloat64())
		}
	}

	h, err := dataset.NewInMemory(dataset.DefaultConfig(), ids,
		map[string]*mat.Dense{"rna": feats, "reports": feats},
		types, []string{"t00", "t01", "t02"},
		map[string][]float64{"metastasis": truth},
		map[string]dataset.Pair{"metastasis": {Pos: pos, Neg: neg}})
	require.NoError(t, err)

	encs := map[string]encoder.Encoder{
		"rna":     &identityEncoder{dim: dim},
		"reports": &identityEncoder{dim: dim},
	}
	return h, encs
}

func TestEvaluatePerfectRetrieval(t *testing.T) {
	data, encs := sharedFeatureCohort(t, 60, 16)

	cfg := evaluation.DefaultConfig()
	cfg.BatchSize = 12
	h, err := evaluation.New(cfg, data, encs, zerolog.Nop())
	require.NoError(t, err)

	report, err := h.Evaluate(1)
	require.NoError(t, err)
	require.Len(t, report.Pairs, 2) // both ordered pairs, no self-pairs

	for _, p := range report.Pairs {
		assert.InDelta(t, 1.0, p.Accuracy, 1e-12, "%s->%s", p.Query, p.Key)
		assert.Less(t, p.Loss, 1.0)
		assert.True(t, math.IsNaN(p.ByType), "cheap mode skips balanced passes")

		// summed confusion counts cover every evaluated row
		var total float64
		r, c := p.Confusion.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				total += p.Confusion.At(i, j)
			}
		}
		assert.InDelta(t, 12.0, total, 1e-12) // held-out split size
	}
	assert.Empty(t, report.AUROC)
}

func TestEvaluateExpensiveMode(t *testing.T) {
	data, encs := sharedFeatureCohort(t, 180, 16)

	dir := t.TempDir()
	cfg := evaluation.DefaultConfig()
	cfg.BatchSize = 9
	cfg.Expensive = true
	cfg.OutDir = dir
	h, err := evaluation.New(cfg, data, encs, testutil.Logger(t))
	require.NoError(t, err)

	report, err := h.Evaluate(5)
	require.NoError(t, err)

	for _, p := range report.Pairs {
		assert.False(t, math.IsNaN(p.ByType), "%s->%s", p.Query, p.Key)
		assert.GreaterOrEqual(t, p.ByType, 0.0)
		assert.LessOrEqual(t, p.ByType, 1.0)
		assert.False(t, math.IsNaN(p.BySite))
	}

	score, ok := report.AUROC["metastasis/rna"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	vt, err := data.ValTest("metastasis", 1<<30)
	require.NoError(t, err)
	require.Len(t, vt, 1)
	var labeled int
	for _, v := range vt[0].Tasks["metastasis"] {
		if v != dataset.Unlabeled {
			labeled++
		}
	}
	require.Less(t, labeled, vt[0].Len(), "probe split must carry unlabeled rows")

	f, err := os.Open(filepath.Join(dir, "predictions-metastasis-rna-epoch5.csv"))
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"metastasis-ids", "metastasis-true", "metastasis-pred"}, recs[0])

	// unlabeled rows never reach the prediction file
	assert.Len(t, recs, labeled+1)
	for _, rec := range recs[1:] {
		assert.NotEqual(t, "-1", rec[1])
	}
}

// The reported pair loss is the symmetric combined-pool form. With a shared
// feature matrix and identity encoders both sides embed identically, so the
// single-batch pass must reproduce the two-batch wrapper exactly.
func TestEvaluatePairLossMatchesSymmetricForm(t *testing.T) {
	data, encs := sharedFeatureCohort(t, 30, 8)

	cfg := evaluation.DefaultConfig()
	cfg.BatchSize = 32 // one batch covers the whole held-out split
	h, err := evaluation.New(cfg, data, encs, zerolog.Nop())
	require.NoError(t, err)

	report, err := h.Evaluate(1)
	require.NoError(t, err)

	split, err := data.ClipTest(32, false)
	require.NoError(t, err)
	require.Len(t, split, 1)
	z := split[0].Inputs["rna"]

	want, err := contrastive.InfoNCE([]*mat.Dense{z, z}, contrastive.MultiOptions{
		Temperature: cfg.Temperature,
		Kind:        cfg.Kind,
	})
	require.NoError(t, err)
	for _, p := range report.Pairs {
		assert.InDelta(t, want, p.Loss, 1e-9, "%s->%s", p.Query, p.Key)
	}
}

// Statement features generated without an explicit dimension must fit the
// reports encoder, so an expensive pass over a generated cohort runs end to
// end.
func TestEvaluateExpensiveModeSyntheticCohort(t *testing.T) {
	data, err := dataset.NewSynthetic(dataset.DefaultConfig(), dataset.SyntheticConfig{
		Entities: 200,
		NumTypes: 3,
		Dims:     map[string]int{"rna": 12, "reports": 10},
		Tasks:    []string{"metastasis"},
		Noise:    0.1,
		Seed:     5,
	})
	require.NoError(t, err)

	encs := make(map[string]encoder.Encoder)
	for i, mod := range []string{"rna", "reports"} {
		dim, err := data.Dim(mod)
		require.NoError(t, err)
		m, err := encoder.NewMLP(mod, dim, []int{16}, 8, int64(i+1))
		require.NoError(t, err)
		encs[mod] = m
	}

	cfg := evaluation.DefaultConfig()
	cfg.BatchSize = 10
	cfg.Expensive = true
	cfg.OutDir = t.TempDir()
	h, err := evaluation.New(cfg, data, encs, zerolog.Nop())
	require.NoError(t, err)

	report, err := h.Evaluate(1)
	require.NoError(t, err)

	score, ok := report.AUROC["metastasis/rna"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestEvaluateRejectsMissingEncoder(t *testing.T) {
	data, encs := sharedFeatureCohort(t, 30, 8)
	delete(encs, "reports")

	_, err := evaluation.New(evaluation.DefaultConfig(), data, encs, zerolog.Nop())
	assert.ErrorIs(t, err, evaluation.ErrMissingModality)
}

func TestDumpEmbeddings(t *testing.T) {
	data, encs := sharedFeatureCohort(t, 40, 8)

	cfg := evaluation.DefaultConfig()
	cfg.BatchSize = 10
	h, err := evaluation.New(cfg, data, encs, zerolog.Nop())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "embeddings.csv")
	require.NoError(t, h.DumpEmbeddings(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	// header + one row per entity
	require.Len(t, recs, 41)
	// id + is_test + 2 modalities × 8 dims + 1 task column
	assert.Len(t, recs[0], 19)
	assert.Equal(t, "id", recs[0][0])
	assert.Equal(t, "is_test", recs[0][1])

	var train, test int
	for _, rec := range recs[1:] {
		switch rec[1] {
		case "0":
			train++
		case "1":
			test++
		}
	}
	assert.Equal(t, 32, train)
	assert.Equal(t, 8, test)
}
