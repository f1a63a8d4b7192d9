// Package config defines the run configuration consumed by the training and
// evaluation phases. A run is described by a YAML experiment file, optionally
// overridden by environment variables and CLI flags; validation happens once,
// before any numeric work starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/objones25/oncoclip/internal/distance"
)

var (
	// ErrInvalidConfig wraps every validation failure
	ErrInvalidConfig = errors.New("invalid run configuration")
)

// Run is the full configuration of one experiment.
type Run struct {
	// Name labels the run; the experiment directory is <OutDir>/<Name>.
	Name   string `yaml:"name"`
	OutDir string `yaml:"out_dir"`

	// Modalities paired by the contrastive loss, in batch order. The first
	// entry is the anchor for the twoway and fourway modes.
	Modalities []string `yaml:"modalities"`

	// Distance is "cosine" or "euclidean".
	Distance    string  `yaml:"distance"`
	Temperature float64 `yaml:"temperature"`

	// Loss mode flags, mutually exclusive. Neither set means allpairs.
	TwoWay  bool      `yaml:"twoway"`
	FourWay bool      `yaml:"fourway"`
	Weights []float64 `yaml:"weights"`

	// MixupScale > 0 enables input mixup with Beta(scale, scale) weights.
	MixupScale float64 `yaml:"mixup_scale"`

	// Encoder shape per modality.
	Hidden []int `yaml:"hidden"`
	RepDim int   `yaml:"rep_dim"`

	// Optimizer / schedule.
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LR           float64 `yaml:"lr"`
	FinalLR      float64 `yaml:"final_lr"`
	WarmupLR     float64 `yaml:"warmup_lr"`
	WarmupEpochs int     `yaml:"warmup_epochs"`
	FlatWarmup   bool    `yaml:"flat_warmup"`
	WeightDecay  float64 `yaml:"weight_decay"`
	Clip         float64 `yaml:"clip"`

	// ChainByType appends one balanced by-type pass to every epoch's batch
	// stream. TypeCount > 0 samples that many random types per pass instead
	// of walking every type.
	ChainByType bool `yaml:"chain_by_type"`
	TypeCount   int  `yaml:"type_count"`

	// Cadences, in epochs. Zero disables the phase.
	ProgressEvery int `yaml:"progress_every"`
	ValEvery      int `yaml:"val_every"`
	EvalEvery     int `yaml:"eval_every"`
	SaveEvery     int `yaml:"save_every"`

	// Evaluation shape. The val_every cadence runs the cheap retrieval-only
	// pass; the eval_every cadence and the evaluate subcommand add the
	// balanced passes and downstream probes.
	EvalReps    int      `yaml:"eval_reps"`
	EvalBatch   int      `yaml:"eval_batch"`
	Tasks       []string `yaml:"tasks"`
	ReportModal string   `yaml:"report_modality"`

	// Validate runs the synthetic self-check instead of training. Exclusive
	// of every other phase.
	ValidateMode bool `yaml:"validate_mode"`

	Seed int64 `yaml:"seed"`
}

// Default returns a runnable configuration; callers override what they need.
func Default() Run {
	return Run{
		Name:          "run",
		OutDir:        "experiments",
		Modalities:    []string{"rna", "reports"},
		Distance:      "cosine",
		Temperature:   0.1,
		Hidden:        []int{256, 256},
		RepDim:        128,
		Epochs:        100,
		BatchSize:     64,
		LR:            1e-3,
		FinalLR:       1e-5,
		WarmupLR:      1e-5,
		WarmupEpochs:  5,
		WeightDecay:   1e-3,
		ProgressEvery: 1,
		ValEvery:      5,
		EvalEvery:     25,
		SaveEvery:     25,
		EvalReps:      1,
		EvalBatch:     64,
		ReportModal:   "reports",
		Seed:          1,
	}
}

// Load reads a YAML experiment file over the defaults, then applies
// environment overrides. A missing .env file is not an error.
func Load(path string) (Run, error) {
	run := Default()

	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return run, fmt.Errorf("read experiment file: %w", err)
		}
		if err := yaml.Unmarshal(data, &run); err != nil {
			return run, fmt.Errorf("parse experiment file: %w", err)
		}
	}
	run.applyEnv()
	return run, nil
}

// applyEnv overrides the fields the launcher varies between slots.
func (r *Run) applyEnv() {
	if v := os.Getenv("ONCOCLIP_OUT_DIR"); v != "" {
		r.OutDir = v
	}
	if v := os.Getenv("ONCOCLIP_NAME"); v != "" {
		r.Name = v
	}
	if v := os.Getenv("ONCOCLIP_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.Seed = seed
		}
	}
}

// Validate surfaces configuration conflicts before any numeric work.
func (r Run) Validate() error {
	if r.TwoWay && r.FourWay {
		return fmt.Errorf("%w: twoway and fourway are mutually exclusive", ErrInvalidConfig)
	}
	if r.MixupScale > 0 && r.FourWay {
		return fmt.Errorf("%w: mixup requires the twoway pairing", ErrInvalidConfig)
	}
	if r.ValidateMode {
		return nil
	}
	if len(r.Modalities) < 2 {
		return fmt.Errorf("%w: need at least 2 modalities, have %d", ErrInvalidConfig, len(r.Modalities))
	}
	if r.Name == "" || r.OutDir == "" {
		return fmt.Errorf("%w: experiment name and out_dir are required", ErrInvalidConfig)
	}
	if r.Temperature <= 0 {
		return fmt.Errorf("%w: temperature %v", ErrInvalidConfig, r.Temperature)
	}
	if _, err := distance.ParseKind(r.Distance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if r.Epochs <= 0 || r.BatchSize <= 0 {
		return fmt.Errorf("%w: epochs=%d batch_size=%d", ErrInvalidConfig, r.Epochs, r.BatchSize)
	}
	if r.LR <= 0 {
		return fmt.Errorf("%w: lr %v", ErrInvalidConfig, r.LR)
	}
	if r.RepDim <= 1 {
		return fmt.Errorf("%w: rep_dim %d", ErrInvalidConfig, r.RepDim)
	}
	if len(r.Weights) > 0 && !r.TwoWay && !r.FourWay {
		return fmt.Errorf("%w: weights require twoway or fourway", ErrInvalidConfig)
	}
	if r.TypeCount < 0 {
		return fmt.Errorf("%w: type_count %d", ErrInvalidConfig, r.TypeCount)
	}
	if r.TypeCount > 0 && !r.ChainByType {
		return fmt.Errorf("%w: type_count requires chain_by_type", ErrInvalidConfig)
	}
	return nil
}

// Dir returns the experiment directory for this run.
func (r Run) Dir() string {
	return r.OutDir + string(os.PathSeparator) + r.Name
}
