package evaluation

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	"github.com/objones25/oncoclip/internal/dataset"
)

// DumpEmbeddings writes the full cohort's representations to a CSV: one row
// per entity with its id, an is_test flag, one column per representation
// dimension per modality, and the downstream task labels.
func (h *Harness) DumpEmbeddings(path string) error {
	for _, enc := range h.encoders {
		enc.SetTraining(false)
	}

	mods := append([]string(nil), h.data.Modalities()...)
	sort.Strings(mods)
	tasks := append([]string(nil), h.data.Tasks()...)
	sort.Strings(tasks)

	f, err := os.Create(path)
	if err != nil {
		return NewEvalError("dump", err, path)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := []string{"id", "is_test"}
	for _, mod := range mods {
		dim := h.encoders[mod].OutputDim()
		for i := 0; i < dim; i++ {
			header = append(header, mod+"-"+strconv.Itoa(i))
		}
	}
	header = append(header, tasks...)
	if err := w.Write(header); err != nil {
		return NewEvalError("dump", err, path)
	}

	write := func(split []dataset.Batch, isTest string) error {
		for _, b := range split {
			embedded := make(map[string][][]float64, len(mods))
			for _, mod := range mods {
				z, err := h.forward(mod, b)
				if err != nil {
					return err
				}
				rows := make([][]float64, b.Len())
				for i := range rows {
					rows[i] = z.RawRowView(i)
				}
				embedded[mod] = rows
			}
			for i := 0; i < b.Len(); i++ {
				rec := []string{b.IDs[i], isTest}
				for _, mod := range mods {
					for _, v := range embedded[mod][i] {
						rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
					}
				}
				for _, task := range tasks {
					rec = append(rec, strconv.FormatFloat(b.Tasks[task][i], 'g', -1, 64))
				}
				if err := w.Write(rec); err != nil {
					return NewEvalError("dump", err, path)
				}
			}
		}
		return nil
	}

	train, err := h.data.Pretrain(h.cfg.BatchSize, false)
	if err != nil {
		return NewEvalError("dump", err, "pretrain split")
	}
	if err := write(train, "0"); err != nil {
		return err
	}
	test, err := h.data.ClipTest(h.cfg.BatchSize, false)
	if err != nil {
		return NewEvalError("dump", err, "test split")
	}
	if err := write(test, "1"); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}
