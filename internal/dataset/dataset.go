// Package dataset defines the data-handler contract the pipeline consumes:
// named splits over multimodal feature batches, balanced by-type loading,
// and the mixup transform. The handler owns dataset construction; the
// training and evaluation code only sees these interfaces.
package dataset

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnknownSplit is returned for a split name outside the fixed set
	ErrUnknownSplit = errors.New("unknown dataset split")

	// ErrUnknownTask is returned when a downstream task is not configured
	ErrUnknownTask = errors.New("unknown downstream task")

	// ErrUnknownModality is returned when a modality has no feature matrix
	ErrUnknownModality = errors.New("unknown modality")

	// ErrBadShape is returned when per-entity arrays disagree on length
	ErrBadShape = errors.New("inconsistent dataset shapes")
)

// Unlabeled is the sentinel for rows without ground truth on a task; such
// rows are silently dropped from AUROC computation.
const Unlabeled = -1

// Pair carries per-row positive and negative statement features for one
// downstream task, produced by the handler's text pipeline.
type Pair struct {
	Pos *mat.Dense
	Neg *mat.Dense
}

// Batch is one minibatch across all modalities of the same entity rows.
type Batch struct {
	IDs    []string
	Inputs map[string]*mat.Dense
	Types  []int

	// Tasks maps a task name to per-row ground truth (Unlabeled allowed).
	Tasks map[string][]float64

	// TaskPairs maps a task name to its per-row statement features.
	TaskPairs map[string]Pair
}

// Len returns the number of entity rows in the batch.
func (b Batch) Len() int { return len(b.IDs) }

// Handler exposes the named splits and transforms the pipeline needs.
type Handler interface {
	Modalities() []string
	NumTypes() int
	TypeNames() []string
	Tasks() []string

	// Dim returns the feature dimension of one modality.
	Dim(modality string) (int, error)

	// Pretrain and ClipTest return the pretraining and held-out splits cut
	// into minibatches.
	Pretrain(batchSize int, shuffle bool) ([]Batch, error)
	ClipTest(batchSize int, shuffle bool) ([]Batch, error)

	// ByType returns class-balanced batches: one batch per type per
	// repetition, or selectSize randomly chosen types when selectSize > 0.
	ByType(batchSize, selectSize int, split string, reps int) ([]Batch, error)

	// BySite returns site-balanced batches, one per tissue source site per
	// repetition. Sites are derived from the entity id.
	BySite(batchSize int, split string, reps int) ([]Batch, error)

	// ValTrain and ValTest return the fine-tuning split for one task.
	ValTrain(task string, batchSize int) ([]Batch, error)
	ValTest(task string, batchSize int) ([]Batch, error)

	// Mixup interpolates the batch inputs with a permuted copy of
	// themselves, returning the permutation and the blend weight.
	Mixup(b Batch, scale float64) ([]int, float64, Batch, error)
}

// SiteOf extracts the two-character tissue source site code from a TCGA
// barcode (characters 5 and 6, e.g. "TCGA-A7-A0CE" → "A7").
func SiteOf(id string) string {
	if len(id) < 7 {
		return ""
	}
	return id[5:7]
}
