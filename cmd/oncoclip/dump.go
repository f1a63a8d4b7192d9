package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

func dumpCmd(flags *rootFlags) *cobra.Command {
	var epoch int
	var ckptDir, out string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "write the full cohort's embeddings for saved encoder weights",
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

			harness, err := p.harness(false)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(run.Dir(), "embeddings.csv")
			}
			if err := harness.DumpEmbeddings(out); err != nil {
				return err
			}
			p.log.Info().Str("path", out).Msg("embedding dump written")
			return nil
		},
	}
	cmd.Flags().IntVar(&epoch, "epoch", 0, "checkpoint epoch to load")
	cmd.Flags().StringVar(&ckptDir, "checkpoints", "", "checkpoint directory (defaults to the run directory)")
	cmd.Flags().StringVar(&out, "output", "", "output CSV path")
	cmd.MarkFlagRequired("epoch")
	return cmd
}
