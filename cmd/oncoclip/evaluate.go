package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/objones25/oncoclip/internal/retrieval"
	"github.com/objones25/oncoclip/internal/training"
)

func evaluateCmd(flags *rootFlags) *cobra.Command {
	var epoch int
	var ckptDir string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "run the expensive evaluation pass over saved encoder weights",
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

			if ckptDir == "" {
				ckptDir = run.Dir()
			}
			if err := restoreEncoders(p, ckptDir, epoch); err != nil {
				return err
			}

			harness, err := p.harness(true)
			if err != nil {
				return err
			}
			report, err := harness.Evaluate(epoch)
			if err != nil {
				return err
			}

			for _, pair := range report.Pairs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s  accuracy %.4f  loss %.4f  class %.4f\n",
					pair.Query, pair.Key, pair.Accuracy, pair.Loss, pair.ClassAccuracy)
				fmt.Fprintln(cmd.OutOrStdout(), retrieval.RenderConfusion(pair.Confusion, data.TypeNames(), 3))
			}
			for key, score := range report.AUROC {
				fmt.Fprintf(cmd.OutOrStdout(), "auroc %s %.4f\n", key, score)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&epoch, "epoch", 0, "checkpoint epoch to load")
	cmd.Flags().StringVar(&ckptDir, "checkpoints", "", "checkpoint directory (defaults to the run directory)")
	cmd.MarkFlagRequired("epoch")
	return cmd
}

// restoreEncoders loads every modality's weight file for the given epoch.
func restoreEncoders(p *pipeline, dir string, epoch int) error {
	for _, mod := range p.run.Modalities {
		path := filepath.Join(dir, fmt.Sprintf("weights-%s-epoch%d.json", mod, epoch))
		ckpt, err := training.LoadCheckpoint(path)
		if err != nil {
			return err
		}
		if err := ckpt.Restore(p.opts[mod].Params()); err != nil {
			return fmt.Errorf("restore %s: %w", mod, err)
		}
	}
	return nil
}
