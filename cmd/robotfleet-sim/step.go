package main

import (
	"github.com/spf13/cobra"

	"robotfleet-sim/internal/logging"
	"robotfleet-sim/internal/sim"
)

var (
	stepConfigPath string
	stepSchemaPath string
	stepCount      int
	stepOutput     string
	stepLogFile    string
	stepSQLite     string
)

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Run manual simulation passes and exit",
	Long:  "step runs the configured simulators over every robot a fixed number of times without starting periodic simulators, writing a snapshot after each pass.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx := logging.NewContext(cmd.Context(), log)

		cfg, err := loadConfig(stepConfigPath, stepSchemaPath)
		if err != nil {
			return err
		}
		f, err := buildFleet(cfg, log, nil)
		if err != nil {
			return err
		}
		writer, cleanup, err := newWriters(cfg, writerOptions{
			PrintOnly:  true,
			Output:     stepOutput,
			LogFile:    stepLogFile,
			SQLitePath: stepSQLite,
		}, log)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := f.Connect(ctx); err != nil {
			log.Warn("some robots failed to connect", "err", err)
		}
		defer f.Disconnect(ctx)

		runner := sim.NewRunner(cfg.FleetID, f, writer, 0, nil)
		return runner.Step(ctx, stepCount)
	},
}

func init() {
	stepCmd.Flags().StringVar(&stepConfigPath, "config", "config/fleet.yaml", "Path to fleet configuration YAML")
	stepCmd.Flags().StringVar(&stepSchemaPath, "schema", "", "Path to CUE schema file (built-in schema when empty)")
	stepCmd.Flags().IntVarP(&stepCount, "count", "n", 1, "Number of manual passes")
	stepCmd.Flags().StringVar(&stepOutput, "output", outputJSON, "STDOUT output: color or json")
	stepCmd.Flags().StringVar(&stepLogFile, "log-file", "", "Path to export state and health logs (JSONL)")
	stepCmd.Flags().StringVar(&stepSQLite, "sqlite", "", "Path to a SQLite database receiving state and health rows")
}
