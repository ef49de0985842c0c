package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"robotfleet-sim/internal/admin"
	"robotfleet-sim/internal/logging"
	"robotfleet-sim/internal/observability"
	"robotfleet-sim/internal/sim"
)

var (
	simPrintOnly  bool
	simConfigPath string
	simSchemaPath string
	simOutput     string
	simLogFile    string
	simSQLite     string
	simAdminAddr  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the virtual fleet in real time",
	Long:  "simulate connects the fleet, starts its periodic simulators with staggered phases and exports state snapshots until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		if simOutput == outputTUI {
			log = logging.Discard()
		}
		ctx, cancel := signal.NotifyContext(logging.NewContext(cmd.Context(), log), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg, err := loadConfig(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}

		shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
		if err != nil {
			return err
		}
		defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

		collector, err := observability.NewFleetCollector(nil)
		if err != nil {
			return err
		}
		f, err := buildFleet(cfg, log, collector)
		if err != nil {
			return err
		}

		writer, cleanup, err := newWriters(cfg, writerOptions{
			PrintOnly:  simPrintOnly,
			Output:     simOutput,
			LogFile:    simLogFile,
			SQLitePath: simSQLite,
		}, log)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := f.Connect(ctx); err != nil {
			log.Warn("some robots failed to connect", "err", err)
		}
		defer func() {
			if err := f.Disconnect(context.Background()); err != nil {
				log.Warn("disconnect failed", "err", err)
			}
		}()

		stop, err := f.StartSimulators(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := stop(); err != nil {
				log.Warn("stopping simulators reported failures", "err", err)
			}
		}()

		runner := sim.NewRunner(cfg.FleetID, f, writer, time.Duration(cfg.PollInterval), nil)
		if tw, ok := writer.(*sim.TUIWriter); ok {
			tw.SetStepper(func(n int) {
				if err := runner.Step(ctx, n); err != nil {
					log.Warn("manual step failed", "err", err)
				}
			})
		}

		if simAdminAddr != "" {
			srv := admin.NewServer(runner, collector.Handler(), log)
			if aw, ok := writer.(sim.AdminStatusWriter); ok {
				srv.OnListen = aw.SetAdminStatus
			}
			go func() {
				if err := srv.Start(ctx, simAdminAddr); err != nil {
					log.Error("admin server failed", "addr", simAdminAddr, "err", err)
				}
			}()
		}

		runner.Run(ctx)
		log.Info("fleet simulation stopped", "samples", runner.Samples())
		return nil
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print state to STDOUT instead of writing to GreptimeDB")
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/fleet.yaml", "Path to fleet configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "", "Path to CUE schema file (built-in schema when empty)")
	simulateCmd.Flags().StringVar(&simOutput, "output", outputAuto, "STDOUT output: auto, tui, color or json")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export state and health logs (JSONL)")
	simulateCmd.Flags().StringVar(&simSQLite, "sqlite", "", "Path to a SQLite database receiving state and health rows")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin-addr", ":8080", "Admin UI listen address; empty disables it")
}
