// Command oncoclip runs the crossmodal contrastive pipeline: pretraining,
// standalone evaluation, the synthetic self-check and embedding dumps.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "oncoclip",
		Short:         "multimodal contrastive pretraining and evaluation for TCGA cohorts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML experiment file")
	pf.StringVar(&flags.dataDir, "data", "", "directory of CSV exports (types.csv, <modality>.csv, ...)")
	pf.StringVar(&flags.name, "name", "", "override the experiment name")
	pf.StringVar(&flags.outDir, "out", "", "override the output directory")
	pf.StringVar(&flags.logLevel, "log-level", "", "zerolog level")

	root.AddCommand(trainCmd(&flags))
	root.AddCommand(evaluateCmd(&flags))
	root.AddCommand(validateCmd(&flags))
	root.AddCommand(dumpCmd(&flags))
	return root
}

type rootFlags struct {
	configPath string
	dataDir    string
	name       string
	outDir     string
	logLevel   string
}
