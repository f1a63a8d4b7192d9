package evaluation

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLabeledRows is returned when every ground-truth entry carries the
	// unlabeled sentinel
	ErrNoLabeledRows = errors.New("no labeled rows for AUROC")

	// ErrOneClass is returned when the labeled rows all belong to one class
	ErrOneClass = errors.New("ground truth has a single class")

	// ErrBadScores is returned when scores and truth disagree on length
	ErrBadScores = errors.New("scores and truth have different lengths")

	// ErrMissingModality is returned when a configured modality has no encoder
	ErrMissingModality = errors.New("no encoder for modality")
)

// EvalError represents an evaluation failure with operation context.
type EvalError struct {
	Op      string // Operation that failed
	Err     error  // Underlying error
	Context string // Additional context
}

func (e *EvalError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Context)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// NewEvalError creates a new EvalError
func NewEvalError(op string, err error, context string) error {
	return &EvalError{
		Op:      op,
		Err:     err,
		Context: context,
	}
}
