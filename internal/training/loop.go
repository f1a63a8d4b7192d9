// Package training drives contrastive pretraining: per epoch it streams
// minibatches through the per-modality encoders, applies the configured
// InfoNCE mode, backpropagates the closed-form embedding gradients, clips
// and steps the optimizers and schedulers, and fires the progress,
// validation, evaluation and checkpoint cadences independently.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/objones25/oncoclip/internal/contrastive"
	"github.com/objones25/oncoclip/internal/dataset"
	"github.com/objones25/oncoclip/internal/distance"
	"github.com/objones25/oncoclip/internal/encoder"
	"github.com/objones25/oncoclip/internal/evaluation"
	"github.com/objones25/oncoclip/internal/monitor"
	"github.com/objones25/oncoclip/internal/optimizer"
	"github.com/objones25/oncoclip/internal/schedule"
)

// ErrSetup is returned when the loop is constructed over mismatched parts.
var ErrSetup = errors.New("invalid training setup")

// Replicator owns whatever data-parallel replication the execution context
// provides. The loop hands it one step closure at a time; loss, accuracy and
// scheduler code stay unaware of replication.
type Replicator interface {
	Run(step func() error) error
}

// Serial is the single-process replicator.
type Serial struct{}

func (Serial) Run(step func() error) error { return step() }

// Config controls one pretraining run.
type Config struct {
	// Modalities in batch order; the first is the anchor for the twoway and
	// fourway modes.
	Modalities []string

	Kind        distance.Kind
	Temperature float64
	TwoWay      bool
	FourWay     bool
	Weights     []float64

	// MixupScale > 0 blends batch inputs and loss targets; requires the
	// twoway pairing.
	MixupScale float64

	Epochs    int
	BatchSize int

	// Clip bounds the global gradient norm; 0 disables clipping.
	Clip float64

	// ChainByType appends one balanced by-type pass to each epoch's stream.
	// TypeCount > 0 samples that many random types per pass; 0 walks every
	// type once.
	ChainByType bool
	TypeCount   int

	// Cadences in epochs; 0 disables the phase.
	ProgressEvery int
	ValEvery      int
	EvalEvery     int
	SaveEvery     int

	// OutDir receives checkpoints and the final embedding dump.
	OutDir string

	// Snapshot is stored verbatim next to each checkpoint set.
	Snapshot any

	// Run labels the exported metrics.
	Run string
}

// Loop wires the data handler, encoders, optimizers and schedulers together.
// The two harnesses serve the two cadences: val runs the cheap retrieval-only
// pass at ValEvery, eval runs the expensive pass at EvalEvery.
type Loop struct {
	cfg    Config
	data   dataset.Handler
	encs   map[string]encoder.Encoder
	opts   map[string]*optimizer.AdamW
	scheds map[string]*schedule.Scheduler
	val    *evaluation.Harness
	eval   *evaluation.Harness
	repl   Replicator
	log    zerolog.Logger
}

// New validates that every configured modality has an encoder, an optimizer
// and a scheduler. Either harness may be nil when its cadence is disabled.
func New(cfg Config, data dataset.Handler, encs map[string]encoder.Encoder,
	opts map[string]*optimizer.AdamW, scheds map[string]*schedule.Scheduler,
	val, eval *evaluation.Harness, repl Replicator, log zerolog.Logger) (*Loop, error) {

	if len(cfg.Modalities) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 modalities", ErrSetup)
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: epochs=%d batch=%d", ErrSetup, cfg.Epochs, cfg.BatchSize)
	}
	if cfg.MixupScale > 0 && !cfg.TwoWay {
		return nil, fmt.Errorf("%w: mixup requires the twoway pairing", ErrSetup)
	}
	for _, mod := range cfg.Modalities {
		if encs[mod] == nil || opts[mod] == nil || scheds[mod] == nil {
			return nil, fmt.Errorf("%w: modality %q not fully wired", ErrSetup, mod)
		}
	}
	if val == nil && cfg.ValEvery > 0 {
		return nil, fmt.Errorf("%w: validation cadence set without a harness", ErrSetup)
	}
	if eval == nil && cfg.EvalEvery > 0 {
		return nil, fmt.Errorf("%w: evaluation cadence set without a harness", ErrSetup)
	}
	if repl == nil {
		repl = Serial{}
	}
	return &Loop{cfg: cfg, data: data, encs: encs, opts: opts, scheds: scheds,
		val: val, eval: eval, repl: repl, log: log}, nil
}

// Run executes the full training schedule. Any runtime error is logged with
// its context and terminates the run; there is no retry.
func (l *Loop) Run(ctx context.Context) error {
	err := l.run(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("training run failed")
		return err
	}
	l.log.Info().Msg("training complete")
	return nil
}

func (l *Loop) run(ctx context.Context) error {
	for epoch := 1; epoch <= l.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}

		loss, stds, err := l.trainEpoch(epoch)
		if err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		monitor.EpochsCompleted.WithLabelValues(l.cfg.Run).Inc()
		monitor.TrainLoss.WithLabelValues(l.cfg.Run).Set(loss)

		if due(epoch, l.cfg.ProgressEvery) {
			ev := l.log.Info().Int("epoch", epoch).Float64("loss", loss)
			for _, mod := range l.cfg.Modalities {
				ev = ev.Float64("std_"+mod, stds[mod]).
					Float64("lr_"+mod, l.scheds[mod].LR())
			}
			ev.Msg("progress")
		}
		if due(epoch, l.cfg.ValEvery) {
			if _, err := l.val.Evaluate(epoch); err != nil {
				return fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
		}
		if due(epoch, l.cfg.EvalEvery) {
			if _, err := l.eval.Evaluate(epoch); err != nil {
				return fmt.Errorf("epoch %d evaluation: %w", epoch, err)
			}
		}
		if due(epoch, l.cfg.SaveEvery) {
			if err := l.save(epoch, loss); err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}
	}
	return nil
}

// trainEpoch streams one epoch of minibatches and returns the mean loss and
// the per-modality embedding standard deviations of the last batch.
func (l *Loop) trainEpoch(epoch int) (float64, map[string]float64, error) {
	for _, mod := range l.cfg.Modalities {
		l.encs[mod].SetTraining(true)
	}

	batches, err := l.data.Pretrain(l.cfg.BatchSize, true)
	if err != nil {
		return 0, nil, err
	}
	if l.cfg.ChainByType {
		balanced, err := l.data.ByType(l.cfg.BatchSize, l.cfg.TypeCount, "pretrain", 1)
		if err != nil {
			return 0, nil, err
		}
		batches = append(batches, balanced...)
	}

	stds := make(map[string]float64, len(l.cfg.Modalities))
	var lossSum float64
	var steps int
	for _, b := range batches {
		err := l.repl.Run(func() error {
			loss, err := l.trainStep(b, stds)
			if err != nil {
				return err
			}
			lossSum += loss
			steps++
			return nil
		})
		if err != nil {
			return 0, nil, err
		}
	}
	if steps == 0 {
		return 0, nil, fmt.Errorf("%w: empty pretrain split", ErrSetup)
	}
	return lossSum / float64(steps), stds, nil
}

// trainStep runs one forward/backward/update cycle on one minibatch.
func (l *Loop) trainStep(b dataset.Batch, stds map[string]float64) (float64, error) {
	start := time.Now()

	var mix *contrastive.Mixup
	if l.cfg.MixupScale > 0 {
		perm, lam, mixed, err := l.data.Mixup(b, l.cfg.MixupScale)
		if err != nil {
			return 0, err
		}
		b = mixed
		mix = &contrastive.Mixup{Lam: lam, Perm: perm}
	}

	zs := make([]*mat.Dense, len(l.cfg.Modalities))
	for i, mod := range l.cfg.Modalities {
		x, ok := b.Inputs[mod]
		if !ok {
			return 0, fmt.Errorf("%w: batch missing modality %q", dataset.ErrUnknownModality, mod)
		}
		z, err := l.encs[mod].Forward(x)
		if err != nil {
			return 0, fmt.Errorf("forward %s: %w", mod, err)
		}
		zs[i] = z
		stds[mod] = stat.StdDev(z.RawMatrix().Data, nil)
	}

	loss, grads, err := contrastive.InfoNCEGrad(zs, contrastive.MultiOptions{
		Temperature: l.cfg.Temperature,
		Kind:        l.cfg.Kind,
		TwoWay:      l.cfg.TwoWay,
		FourWay:     l.cfg.FourWay,
		Weights:     l.cfg.Weights,
		Mixup:       mix,
	})
	if err != nil {
		return 0, fmt.Errorf("loss: %w", err)
	}

	for i, mod := range l.cfg.Modalities {
		if err := l.encs[mod].Backward(grads[i]); err != nil {
			return 0, fmt.Errorf("backward %s: %w", mod, err)
		}
	}

	if l.cfg.Clip > 0 {
		var params []*optimizer.Param
		for _, mod := range l.cfg.Modalities {
			params = append(params, l.opts[mod].Params()...)
		}
		norm := optimizer.ClipGradNorm(params, l.cfg.Clip)
		monitor.GradNorm.WithLabelValues(l.cfg.Run).Set(norm)
	}

	for _, mod := range l.cfg.Modalities {
		lr, err := l.scheds[mod].Step()
		if err != nil {
			return 0, fmt.Errorf("schedule %s: %w", mod, err)
		}
		monitor.LearningRate.WithLabelValues(l.cfg.Run).Set(lr)
		l.opts[mod].Step()
		l.opts[mod].ZeroGrad()
	}

	monitor.TrainStepLatency.WithLabelValues(l.cfg.Run).Observe(time.Since(start).Seconds())
	return loss, nil
}

// save writes one weight file per modality plus the run snapshot.
func (l *Loop) save(epoch int, loss float64) error {
	for _, mod := range l.cfg.Modalities {
		if err := SaveCheckpoint(l.cfg.OutDir, epoch, mod, loss, l.opts[mod].Params()); err != nil {
			return err
		}
	}
	if l.cfg.Snapshot != nil {
		if err := SaveRunSnapshot(l.cfg.OutDir, epoch, l.cfg.Snapshot); err != nil {
			return err
		}
	}
	return nil
}

// Finish writes the end-of-run embedding dump.
func (l *Loop) Finish(path string) error {
	switch {
	case l.eval != nil:
		return l.eval.DumpEmbeddings(path)
	case l.val != nil:
		return l.val.DumpEmbeddings(path)
	}
	return nil
}

func due(epoch, every int) bool {
	return every > 0 && epoch%every == 0
}
