// Command inspect summarizes saved artifacts: checkpoint weight files
// (parameter shapes and norms) and embedding dump CSVs (column layout and
// split sizes). Useful when deciding which epoch of a long run to evaluate.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <checkpoint.json|embeddings.csv> ...\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	for _, path := range os.Args[1:] {
		var err error
		switch {
		case strings.HasSuffix(path, ".json"):
			err = inspectCheckpoint(path)
		case strings.HasSuffix(path, ".csv"):
			err = inspectDump(path)
		default:
			err = fmt.Errorf("unrecognized artifact type")
		}
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("inspection failed")
			os.Exit(1)
		}
	}
}
