package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// LoadDir builds an in-memory handler from a directory of CSV exports:
//
//	types.csv             id,type       (type is a free-form class name)
//	<modality>.csv        id,f0,f1,...  one file per configured modality
//	task-<name>.csv       id,truth      binary truth, -1 for unlabeled
//	task-<name>-pos.csv   id,f0,...     positive statement features
//	task-<name>-neg.csv   id,f0,...     negative statement features
//
// Entity order follows types.csv; every other file must cover those ids.
func LoadDir(cfg Config, dir string, modalities, tasks []string) (*InMemory, error) {
	ids, typeIdx, typeNames, err := loadTypes(filepath.Join(dir, "types.csv"))
	if err != nil {
		return nil, err
	}

	features := make(map[string]*mat.Dense, len(modalities))
	for _, mod := range modalities {
		m, err := loadFeatures(filepath.Join(dir, mod+".csv"), ids)
		if err != nil {
			return nil, fmt.Errorf("modality %s: %w", mod, err)
		}
		features[mod] = m
	}

	truths := make(map[string][]float64, len(tasks))
	pairs := make(map[string]Pair, len(tasks))
	for _, task := range tasks {
		truth, err := loadTruth(filepath.Join(dir, "task-"+task+".csv"), ids)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", task, err)
		}
		pos, err := loadFeatures(filepath.Join(dir, "task-"+task+"-pos.csv"), ids)
		if err != nil {
			return nil, fmt.Errorf("task %s positives: %w", task, err)
		}
		neg, err := loadFeatures(filepath.Join(dir, "task-"+task+"-neg.csv"), ids)
		if err != nil {
			return nil, fmt.Errorf("task %s negatives: %w", task, err)
		}
		truths[task] = truth
		pairs[task] = Pair{Pos: pos, Neg: neg}
	}

	return NewInMemory(cfg, ids, features, typeIdx, typeNames, truths, pairs)
}

func loadTypes(path string) ([]string, []int, []string, error) {
	recs, err := readCSV(path)
	if err != nil {
		return nil, nil, nil, err
	}

	var ids, rawTypes []string
	for _, rec := range recs {
		if len(rec) < 2 {
			return nil, nil, nil, fmt.Errorf("%w: %s needs id,type columns", ErrBadShape, path)
		}
		ids = append(ids, rec[0])
		rawTypes = append(rawTypes, rec[1])
	}

	nameSet := make(map[string]bool)
	for _, ty := range rawTypes {
		nameSet[ty] = true
	}
	var names []string
	for ty := range nameSet {
		names = append(names, ty)
	}
	sort.Strings(names)
	index := make(map[string]int, len(names))
	for i, ty := range names {
		index[ty] = i
	}

	typeIdx := make([]int, len(rawTypes))
	for i, ty := range rawTypes {
		typeIdx[i] = index[ty]
	}
	return ids, typeIdx, names, nil
}

func loadFeatures(path string, ids []string) (*mat.Dense, error) {
	recs, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrBadShape, path)
	}

	dim := len(recs[0]) - 1
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %s has no feature columns", ErrBadShape, path)
	}
	byID := make(map[string][]float64, len(recs))
	for _, rec := range recs {
		if len(rec)-1 != dim {
			return nil, fmt.Errorf("%w: ragged row for id %s", ErrBadShape, rec[0])
		}
		row := make([]float64, dim)
		for j, field := range rec[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: id %s column %d: %v", ErrBadShape, rec[0], j, err)
			}
			row[j] = v
		}
		byID[rec[0]] = row
	}

	out := mat.NewDense(len(ids), dim, nil)
	for i, id := range ids {
		row, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: no row for id %s", ErrBadShape, id)
		}
		out.SetRow(i, row)
	}
	return out, nil
}

func loadTruth(path string, ids []string) ([]float64, error) {
	recs, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]float64, len(recs))
	for _, rec := range recs {
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: %s needs id,truth columns", ErrBadShape, path)
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: id %s: %v", ErrBadShape, rec[0], err)
		}
		byID[rec[0]] = v
	}

	// ids absent from the truth file count as unlabeled
	out := make([]float64, len(ids))
	for i, id := range ids {
		v, ok := byID[id]
		if !ok {
			v = Unlabeled
		}
		out[i] = v
	}
	return out, nil
}

// readCSV reads all data records. Every file carries a header row, which is
// dropped.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrBadShape, path)
	}
	return recs[1:], nil
}
