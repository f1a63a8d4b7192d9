package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/objones25/oncoclip/internal/dataset"
	"github.com/objones25/oncoclip/internal/training"
)

// validateCmd runs the synthetic self-check: a small clustered cohort is
// generated, the pipeline trains on it for a few epochs and the final
// retrieval accuracy must clear chance level. Exclusive of every other mode.
func validateCmd(flags *rootFlags) *cobra.Command {
	var entities, epochs int

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "train on a synthetic cohort and check the pipeline end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := loadRun(flags)
			if err != nil {
				return err
			}
			run.ValidateMode = true
			run.Epochs = epochs
			if len(run.Modalities) < 2 {
				run.Modalities = []string{"rna", "reports"}
			}

			dims := make(map[string]int, len(run.Modalities))
			for i, mod := range run.Modalities {
				dims[mod] = 32 + 8*i
			}
			data, err := dataset.NewSynthetic(dataset.Config{
				TrainRatio:   0.8,
				FTTrainRatio: 0.5,
				Seed:         run.Seed,
			}, dataset.SyntheticConfig{
				Entities:  entities,
				NumTypes:  4,
				Dims:      dims,
				Tasks:     run.Tasks,
				TaskDim:   dims[run.ReportModal],
				Noise:     0.1,
				Unlabeled: 0.1,
				Seed:      run.Seed,
			})
			if err != nil {
				return err
			}

			p, err := buildPipeline(flags, run, data)
			if err != nil {
				return err
			}
			defer p.log.Close()

			loop, err := training.New(training.Config{
				Modalities:    run.Modalities,
				Kind:          p.kind,
				Temperature:   run.Temperature,
				Epochs:        run.Epochs,
				BatchSize:     run.BatchSize,
				Clip:          run.Clip,
				ProgressEvery: 1,
				Run:           run.Name,
			}, data, p.encs, p.opts, p.sch, nil, nil, training.Serial{}, p.log.Logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := loop.Run(ctx); err != nil {
				return err
			}

			harness, err := p.harness(false)
			if err != nil {
				return err
			}
			report, err := harness.Evaluate(run.Epochs)
			if err != nil {
				return err
			}

			chance := 1.0 / float64(data.NumTypes())
			for _, pair := range report.Pairs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s  accuracy %.4f\n",
					pair.Query, pair.Key, pair.Accuracy)
				if pair.Accuracy <= chance {
					return fmt.Errorf("self-check failed: %s -> %s accuracy %.4f at or below chance %.4f",
						pair.Query, pair.Key, pair.Accuracy, chance)
				}
			}
			p.log.Info().Msg("self-check passed")
			return nil
		},
	}
	cmd.Flags().IntVar(&entities, "entities", 400, "synthetic cohort size")
	cmd.Flags().IntVar(&epochs, "epochs", 20, "self-check training epochs")
	return cmd
}
