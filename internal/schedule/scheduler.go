// Package schedule implements the per-optimizer learning-rate schedule used
// for pretraining: a linear warmup into the base rate followed by cosine
// annealing down to the final rate. The whole per-iteration sequence is
// precomputed at construction and owns its iteration counter.
package schedule

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrExhausted is returned when the scheduler is stepped past its
	// precomputed length; callers own the iteration budget
	ErrExhausted = errors.New("schedule exhausted")

	// ErrBadConfig is returned for an unusable schedule configuration
	ErrBadConfig = errors.New("invalid schedule configuration")
)

// Target is the hook a scheduler drives: it applies the learning rate to
// every parameter group of the bound optimizer.
type Target interface {
	SetLR(lr float64)
}

// Config describes the full training run's schedule.
type Config struct {
	WarmupEpochs  int
	WarmupLR      float64
	Epochs        int
	BaseLR        float64
	FinalLR       float64
	ItersPerEpoch int

	// FlatWarmup holds the warmup phase at WarmupLR instead of
	// interpolating up to BaseLR.
	FlatWarmup bool
}

// Scheduler steps one optimizer through the precomputed sequence.
type Scheduler struct {
	target   Target
	sequence []float64
	iter     int
	current  float64
}

// New precomputes the warmup and decay sequences and binds the target.
func New(target Target, cfg Config) (*Scheduler, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil target", ErrBadConfig)
	}
	if cfg.Epochs <= 0 || cfg.ItersPerEpoch <= 0 {
		return nil, fmt.Errorf("%w: epochs=%d iters=%d", ErrBadConfig, cfg.Epochs, cfg.ItersPerEpoch)
	}
	if cfg.WarmupEpochs < 0 || cfg.WarmupEpochs > cfg.Epochs {
		return nil, fmt.Errorf("%w: warmup epochs %d outside [0,%d]", ErrBadConfig, cfg.WarmupEpochs, cfg.Epochs)
	}

	warmupIters := cfg.WarmupEpochs * cfg.ItersPerEpoch
	decayIters := (cfg.Epochs - cfg.WarmupEpochs) * cfg.ItersPerEpoch

	seq := make([]float64, 0, warmupIters+decayIters)
	for i := 0; i < warmupIters; i++ {
		if cfg.FlatWarmup {
			seq = append(seq, cfg.WarmupLR)
			continue
		}
		seq = append(seq, linspace(cfg.WarmupLR, cfg.BaseLR, warmupIters, i))
	}
	for i := 0; i < decayIters; i++ {
		v := cfg.FinalLR + 0.5*(cfg.BaseLR-cfg.FinalLR)*
			(1+math.Cos(math.Pi*float64(i)/float64(decayIters)))
		seq = append(seq, v)
	}

	return &Scheduler{target: target, sequence: seq}, nil
}

// Step applies the schedule value at the current iteration to the bound
// target, advances the counter and returns the applied learning rate.
// Stepping past the precomputed length fails; there is no cycling.
func (s *Scheduler) Step() (float64, error) {
	if s.iter >= len(s.sequence) {
		return 0, fmt.Errorf("%w: step %d of %d", ErrExhausted, s.iter+1, len(s.sequence))
	}
	lr := s.sequence[s.iter]
	s.target.SetLR(lr)
	s.iter++
	s.current = lr
	return lr, nil
}

// LR returns the most recently applied learning rate.
func (s *Scheduler) LR() float64 { return s.current }

// Len returns the total iteration budget.
func (s *Scheduler) Len() int { return len(s.sequence) }

// Remaining returns how many steps are left.
func (s *Scheduler) Remaining() int { return len(s.sequence) - s.iter }

// linspace mirrors an inclusive-endpoint linear interpolation over n points.
func linspace(start, stop float64, n, i int) float64 {
	if n <= 1 {
		return start
	}
	return start + (stop-start)*float64(i)/float64(n-1)
}
