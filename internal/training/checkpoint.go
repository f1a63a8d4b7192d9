package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/objones25/oncoclip/internal/optimizer"
)

// weightTensor is one named parameter matrix in row-major order.
type weightTensor struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// Checkpoint is one modality's encoder state at one epoch.
type Checkpoint struct {
	Epoch    int            `json:"epoch"`
	Modality string         `json:"modality"`
	Loss     float64        `json:"loss"`
	Weights  []weightTensor `json:"weights"`
}

// SaveCheckpoint writes one modality's parameters as a JSON weight file
// named weights-<modality>-epoch<N>.json under dir.
func SaveCheckpoint(dir string, epoch int, modality string, loss float64, params []*optimizer.Param) error {
	ckpt := Checkpoint{Epoch: epoch, Modality: modality, Loss: loss}
	for _, p := range params {
		r, c := p.Value.Dims()
		data := append([]float64(nil), p.Value.RawMatrix().Data...)
		ckpt.Weights = append(ckpt.Weights, weightTensor{Name: p.Name, Rows: r, Cols: c, Data: data})
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("weights-%s-epoch%d.json", modality, epoch))
	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a JSON weight file back.
func LoadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return ckpt, nil
}

// Restore copies checkpoint weights into a live parameter group, matched by
// name.
func (c Checkpoint) Restore(params []*optimizer.Param) error {
	byName := make(map[string]weightTensor, len(c.Weights))
	for _, w := range c.Weights {
		byName[w.Name] = w
	}
	for _, p := range params {
		w, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint missing parameter %q", p.Name)
		}
		r, cols := p.Value.Dims()
		if w.Rows != r || w.Cols != cols || len(w.Data) != r*cols {
			return fmt.Errorf("checkpoint parameter %q has shape %dx%d, want %dx%d",
				p.Name, w.Rows, w.Cols, r, cols)
		}
		p.Value.Copy(mat.NewDense(w.Rows, w.Cols, w.Data))
	}
	return nil
}

// SaveRunSnapshot writes the run configuration alongside the weight files so
// a checkpoint directory is self-describing.
func SaveRunSnapshot(dir string, epoch int, cfg any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run snapshot: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("config-epoch%d.json", epoch))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run snapshot: %w", err)
	}
	return nil
}
