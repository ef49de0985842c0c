package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"robotfleet-sim/internal/logging"
	"robotfleet-sim/internal/sim"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayOutput    string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a robot state log file",
	Long:  "replay feeds state rows from a JSONL log back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		log := newLogger()
		ctx, cancel := signal.NotifyContext(logging.NewContext(cmd.Context(), log), os.Interrupt)
		defer cancel()

		writer, cleanup, err := newWriters(nil, writerOptions{PrintOnly: replayPrintOnly, Output: replayOutput}, log)
		if err != nil {
			return err
		}
		defer cleanup()
		return sim.ReplayLogFile(ctx, replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to state log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print state to STDOUT instead of writing to GreptimeDB")
	replayCmd.Flags().StringVar(&replayOutput, "output", outputJSON, "STDOUT output: color or json")
	replayCmd.MarkFlagRequired("input")
}
