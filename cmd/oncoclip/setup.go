package main

import (
	"fmt"

	"github.com/objones25/oncoclip/internal/config"
	"github.com/objones25/oncoclip/internal/dataset"
	"github.com/objones25/oncoclip/internal/distance"
	"github.com/objones25/oncoclip/internal/encoder"
	"github.com/objones25/oncoclip/internal/evaluation"
	"github.com/objones25/oncoclip/internal/optimizer"
	"github.com/objones25/oncoclip/internal/runlog"
	"github.com/objones25/oncoclip/internal/schedule"
)

// pipeline bundles everything a subcommand needs once the run is wired.
type pipeline struct {
	run  config.Run
	kind distance.Kind
	data dataset.Handler
	encs map[string]encoder.Encoder
	opts map[string]*optimizer.AdamW
	sch  map[string]*schedule.Scheduler
	log  *runlog.Logger
}

// loadRun resolves the configuration from file, env and flag overrides.
func loadRun(flags *rootFlags) (config.Run, error) {
	run, err := config.Load(flags.configPath)
	if err != nil {
		return run, err
	}
	if flags.name != "" {
		run.Name = flags.name
	}
	if flags.outDir != "" {
		run.OutDir = flags.outDir
	}
	if err := run.Validate(); err != nil {
		return run, err
	}
	return run, nil
}

// buildPipeline loads the data and constructs per-modality encoders,
// optimizers and schedulers sized to the run.
func buildPipeline(flags *rootFlags, run config.Run, data dataset.Handler) (*pipeline, error) {
	kind, err := distance.ParseKind(run.Distance)
	if err != nil {
		return nil, err
	}

	log, err := runlog.New(runlog.Options{
		Dir:     run.Dir(),
		Level:   flags.logLevel,
		Console: true,
	})
	if err != nil {
		return nil, err
	}

	pre, err := data.Pretrain(run.BatchSize, false)
	if err != nil {
		return nil, err
	}
	itersPerEpoch := len(pre)
	if run.ChainByType {
		// the chained balanced pass consumes schedule budget too
		if run.TypeCount > 0 {
			itersPerEpoch += run.TypeCount
		} else {
			itersPerEpoch += data.NumTypes()
		}
	}

	p := &pipeline{
		run:  run,
		kind: kind,
		data: data,
		encs: make(map[string]encoder.Encoder, len(run.Modalities)),
		opts: make(map[string]*optimizer.AdamW, len(run.Modalities)),
		sch:  make(map[string]*schedule.Scheduler, len(run.Modalities)),
		log:  log,
	}
	for i, mod := range run.Modalities {
		dim, err := data.Dim(mod)
		if err != nil {
			return nil, err
		}
		m, err := encoder.NewMLP(mod, dim, run.Hidden, run.RepDim, run.Seed+int64(i))
		if err != nil {
			return nil, fmt.Errorf("encoder %s: %w", mod, err)
		}

		optCfg := optimizer.DefaultAdamWConfig()
		optCfg.LR = run.LR
		optCfg.WeightDecay = run.WeightDecay
		opt, err := optimizer.NewAdamW(m.Params(), optCfg)
		if err != nil {
			return nil, fmt.Errorf("optimizer %s: %w", mod, err)
		}

		sched, err := schedule.New(opt, schedule.Config{
			WarmupEpochs:  run.WarmupEpochs,
			WarmupLR:      run.WarmupLR,
			Epochs:        run.Epochs,
			BaseLR:        run.LR,
			FinalLR:       run.FinalLR,
			ItersPerEpoch: itersPerEpoch,
			FlatWarmup:    run.FlatWarmup,
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", mod, err)
		}

		p.encs[mod] = m
		p.opts[mod] = opt
		p.sch[mod] = sched
	}
	return p, nil
}

// harness builds an evaluation harness over the pipeline's encoders.
func (p *pipeline) harness(expensive bool) (*evaluation.Harness, error) {
	cfg := evaluation.DefaultConfig()
	cfg.Kind = p.kind
	cfg.Temperature = p.run.Temperature
	cfg.BatchSize = p.run.EvalBatch
	cfg.Reps = p.run.EvalReps
	cfg.Expensive = expensive
	cfg.Tasks = p.run.Tasks
	cfg.ReportModality = p.run.ReportModal
	cfg.OutDir = p.run.Dir()
	cfg.Run = p.run.Name
	return evaluation.New(cfg, p.data, p.encs, p.log.Logger)
}

// loadData builds the handler from the CSV export directory.
func loadData(flags *rootFlags, run config.Run) (dataset.Handler, error) {
	if flags.dataDir == "" {
		return nil, fmt.Errorf("%w: --data directory is required", config.ErrInvalidConfig)
	}
	cfg := dataset.DefaultConfig()
	cfg.Seed = run.Seed
	return dataset.LoadDir(cfg, flags.dataDir, run.Modalities, run.Tasks)
}
