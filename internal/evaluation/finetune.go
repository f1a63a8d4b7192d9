package evaluation

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/objones25/oncoclip/internal/dataset"
	"github.com/objones25/oncoclip/internal/distance"
	"github.com/objones25/oncoclip/internal/monitor"
)

// runProbes scores every (task, modality) combination against the report
// modality and records the AUROCs in the report.
func (h *Harness) runProbes(epoch int, mods []string, report *Report) error {
	if h.cfg.ReportModality == "" {
		return nil
	}
	if _, ok := h.encoders[h.cfg.ReportModality]; !ok {
		return NewEvalError("probe", ErrMissingModality, h.cfg.ReportModality)
	}
	tasks := h.cfg.Tasks
	if tasks == nil {
		tasks = h.data.Tasks()
	}
	for _, task := range tasks {
		for _, mod := range mods {
			if mod == h.cfg.ReportModality {
				continue
			}
			score, err := h.probe(epoch, task, mod)
			if err != nil {
				return err
			}
			report.AUROC[task+"/"+mod] = score
			monitor.ProbeAUROC.WithLabelValues(h.cfg.Run, task).Set(score)
			h.log.Info().
				Int("epoch", epoch).
				Str("task", task).Str("modality", mod).
				Float64("auroc", score).
				Msg("zero-shot probe")
		}
	}
	return nil
}

// probe scores one downstream task for one modality: frozen copies of the
// base and report encoders embed the entities and the task's positive and
// negative statements, and each row's pseudo-probability is
// sigmoid(simPos − simNeg). Rows without ground truth are dropped before
// scoring and never reach the prediction CSV.
func (h *Harness) probe(epoch int, task, mod string) (float64, error) {
	base := h.encoders[mod].Clone()
	text := h.encoders[h.cfg.ReportModality].Clone()
	base.SetTraining(false)
	text.SetTraining(false)

	split, err := h.data.ValTest(task, h.cfg.BatchSize)
	if err != nil {
		return 0, NewEvalError("probe", err, task)
	}

	var ids []string
	var truth, pred []float64
	for _, b := range split {
		x, ok := b.Inputs[mod]
		if !ok {
			return 0, NewEvalError("probe", dataset.ErrUnknownModality, mod)
		}
		pair, ok := b.TaskPairs[task]
		if !ok {
			return 0, NewEvalError("probe", dataset.ErrUnknownTask, task)
		}

		z, err := base.Forward(x)
		if err != nil {
			return 0, NewEvalError("probe", err, mod)
		}
		zp, err := text.Forward(pair.Pos)
		if err != nil {
			return 0, NewEvalError("probe", err, task+" positives")
		}
		zn, err := text.Forward(pair.Neg)
		if err != nil {
			return 0, NewEvalError("probe", err, task+" negatives")
		}

		for i := 0; i < b.Len(); i++ {
			if b.Tasks[task][i] == dataset.Unlabeled {
				continue
			}
			simPos := rowSimilarity(h.cfg.Kind, z.RawRowView(i), zp.RawRowView(i))
			simNeg := rowSimilarity(h.cfg.Kind, z.RawRowView(i), zn.RawRowView(i))
			ids = append(ids, b.IDs[i])
			truth = append(truth, b.Tasks[task][i])
			pred = append(pred, 1/(1+math.Exp(simNeg-simPos)))
		}
	}

	score, err := AUROC(truth, pred)
	if err != nil {
		return 0, NewEvalError("probe", err, task)
	}
	if h.cfg.OutDir != "" {
		if err := writePredictions(h.cfg.OutDir, epoch, task, mod, ids, truth, pred); err != nil {
			return 0, err
		}
	}
	return score, nil
}

// rowSimilarity scores one embedding pair under the configured kind, with
// the same sign conventions as the pairwise matrix.
func rowSimilarity(kind distance.Kind, a, b []float64) float64 {
	if kind == distance.Euclidean {
		return 2*floats.Dot(a, b) - floats.Dot(a, a) - floats.Dot(b, b)
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

func writePredictions(dir string, epoch int, task, mod string, ids []string, truth, pred []float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewEvalError("predictions", err, task)
	}
	path := filepath.Join(dir, fmt.Sprintf("predictions-%s-%s-epoch%d.csv", task, mod, epoch))
	f, err := os.Create(path)
	if err != nil {
		return NewEvalError("predictions", err, path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{task + "-ids", task + "-true", task + "-pred"}); err != nil {
		return NewEvalError("predictions", err, path)
	}
	for i := range ids {
		rec := []string{
			ids[i],
			strconv.FormatFloat(truth[i], 'g', -1, 64),
			strconv.FormatFloat(pred[i], 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return NewEvalError("predictions", err, path)
		}
	}
	w.Flush()
	return w.Error()
}
