package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"robotfleet-sim/internal/logging"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "robotfleet-sim",
	Short:         "Virtual robot fleet simulator",
	Long:          "robotfleet-sim drives a fleet of virtual robots through pluggable simulators and exports their state.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger merges LOG_LEVEL/LOG_FORMAT with the persistent flags, flags winning.
func newLogger() *slog.Logger {
	cfg := logging.ConfigFromEnv()
	if logLevel != "" {
		cfg.Level = logLevel
	}
	if logFormat != "" {
		cfg.Format = logFormat
	}
	return logging.NewWithWriter(os.Stderr, cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (default from LOG_FORMAT)")
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(dashboardCmd)
}
