package main

import (
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/objones25/oncoclip/internal/evaluation"
	"github.com/objones25/oncoclip/internal/training"
)

func trainCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "pretrain the per-modality encoders with the configured InfoNCE mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := loadRun(flags)
			if err != nil {
				return err
			}
			data, err := loadData(flags, run)
			if err != nil {
				return err
			}
			p, err := buildPipeline(flags, run, data)
			if err != nil {
				return err
			}
			defer p.log.Close()

			// the validation cadence stays cheap; only the evaluation
			// cadence runs the balanced passes and downstream probes
			var val, eval *evaluation.Harness
			if run.ValEvery > 0 {
				if val, err = p.harness(false); err != nil {
					return err
				}
			}
			if run.EvalEvery > 0 {
				if eval, err = p.harness(true); err != nil {
					return err
				}
			}

			loop, err := training.New(training.Config{
				Modalities:    run.Modalities,
				Kind:          p.kind,
				Temperature:   run.Temperature,
				TwoWay:        run.TwoWay,
				FourWay:       run.FourWay,
				Weights:       run.Weights,
				MixupScale:    run.MixupScale,
				Epochs:        run.Epochs,
				BatchSize:     run.BatchSize,
				Clip:          run.Clip,
				ChainByType:   run.ChainByType,
				TypeCount:     run.TypeCount,
				ProgressEvery: run.ProgressEvery,
				ValEvery:      run.ValEvery,
				EvalEvery:     run.EvalEvery,
				SaveEvery:     run.SaveEvery,
				OutDir:        run.Dir(),
				Snapshot:      run,
				Run:           run.Name,
			}, data, p.encs, p.opts, p.sch, val, eval, training.Serial{}, p.log.Logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := loop.Run(ctx); err != nil {
				return err
			}
			return loop.Finish(filepath.Join(run.Dir(), "embeddings.csv"))
		},
	}
}
