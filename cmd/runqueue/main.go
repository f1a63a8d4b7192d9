// Command runqueue drains a static list of training commands two at a time,
// pinning each slot to its own device group. After a job exits, its run log
// is checked for the completion marker and the command file is rewritten
// with the finished line commented out, so an interrupted queue can be
// relaunched without repeating work.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/objones25/oncoclip/internal/monitor"
)

// completionMarker is the line the training loop logs when a run finishes
// cleanly.
const completionMarker = "training complete"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		file    string
		devices []string
	)

	cmd := &cobra.Command{
		Use:           "runqueue",
		Short:         "run queued training commands two at a time on disjoint device groups",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
				With().Timestamp().Logger()
			q := &queue{file: file, devices: devices, log: log}
			return q.drain(cmd)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "run_lines.txt", "command list, one training run per line")
	cmd.Flags().StringSliceVar(&devices, "devices", []string{"0", "1"}, "device group per slot")
	return cmd
}

type queue struct {
	file    string
	devices []string
	log     zerolog.Logger
}

type job struct {
	line int // index into the raw file
	cmd  string
}

// drain runs pending jobs in slot-sized waves until the file is exhausted.
func (q *queue) drain(cmd *cobra.Command) error {
	jobs, err := pendingJobs(q.file)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		q.log.Info().Str("file", q.file).Msg("nothing to run")
		return nil
	}
	slots := len(q.devices)
	if slots == 0 {
		return fmt.Errorf("need at least one device group")
	}

	for start := 0; start < len(jobs); start += slots {
		end := min(start+slots, len(jobs))
		wave := jobs[start:end]

		var g errgroup.Group
		for slot, j := range wave {
			slot, j := slot, j // per-iteration copies for pre-1.22 loop semantics
			g.Go(func() error {
				return q.runJob(cmd, j, slot)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	q.log.Info().Int("jobs", len(jobs)).Msg("queue drained")
	return nil
}

// runJob executes one command pinned to its slot's device group, then marks
// the line complete when the run log carries the completion marker.
func (q *queue) runJob(cmd *cobra.Command, j job, slot int) error {
	label := fmt.Sprintf("slot%d", slot)
	q.log.Info().Str("slot", label).Str("cmd", j.cmd).Msg("starting job")
	monitor.RunsLaunched.WithLabelValues(label).Inc()

	proc := exec.CommandContext(cmd.Context(), "sh", "-c", j.cmd)
	proc.Stdout = cmd.OutOrStdout()
	proc.Stderr = cmd.ErrOrStderr()
	proc.Env = append(os.Environ(), "ONCOCLIP_DEVICES="+q.devices[slot])

	runErr := proc.Run()
	if runErr != nil {
		monitor.RunsFailed.WithLabelValues(label).Inc()
		q.log.Error().Err(runErr).Str("slot", label).Str("cmd", j.cmd).Msg("job failed")
		// a failed job stays pending; keep draining the queue
		return nil
	}

	logPath := runLogPath(j.cmd)
	if logPath == "" {
		q.log.Warn().Str("cmd", j.cmd).Msg("cannot locate run log, leaving line pending")
		return nil
	}
	done, err := awaitMarker(logPath)
	if err != nil {
		q.log.Warn().Err(err).Str("log", logPath).Msg("marker wait failed")
		return nil
	}
	if !done {
		q.log.Warn().Str("log", logPath).Msg("no completion marker, leaving line pending")
		return nil
	}

	if err := markComplete(q.file, j.line); err != nil {
		return fmt.Errorf("mark line %d complete: %w", j.line, err)
	}
	q.log.Info().Str("slot", label).Str("cmd", j.cmd).Msg("job complete")
	return nil
}

// runLogPath derives <out>/<name>/run.log from the command's flags.
func runLogPath(cmdLine string) string {
	out := flagValue(cmdLine, "--out")
	name := flagValue(cmdLine, "--name")
	if out == "" || name == "" {
		return ""
	}
	return strings.Join([]string{out, name, "run.log"}, string(os.PathSeparator))
}

func flagValue(cmdLine, flag string) string {
	fields := strings.Fields(cmdLine)
	for i, f := range fields {
		if f == flag && i+1 < len(fields) {
			return fields[i+1]
		}
		if v, ok := strings.CutPrefix(f, flag+"="); ok {
			return v
		}
	}
	return ""
}
