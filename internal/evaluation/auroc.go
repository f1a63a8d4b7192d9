package evaluation

import (
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/objones25/oncoclip/internal/dataset"
)

// AUROC computes the area under the ROC curve of scores against binary
// ground truth. Rows whose truth carries the unlabeled sentinel are silently
// dropped before the curve is built.
func AUROC(truth, scores []float64) (float64, error) {
	if len(truth) != len(scores) {
		return 0, NewEvalError("auroc", ErrBadScores, "")
	}

	var y []float64
	var classes []bool
	var pos, neg int
	for i, t := range truth {
		if t == dataset.Unlabeled {
			continue
		}
		y = append(y, scores[i])
		if t > 0.5 {
			classes = append(classes, true)
			pos++
		} else {
			classes = append(classes, false)
			neg++
		}
	}
	if len(y) == 0 {
		return 0, ErrNoLabeledRows
	}
	if pos == 0 || neg == 0 {
		return 0, ErrOneClass
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}
