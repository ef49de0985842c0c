package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"robotfleet-sim/internal/config"
)

var validateSchemaPath string

var validateCmd = &cobra.Command{
	Use:   "validate <config.yaml>",
	Short: "Validate a fleet configuration against the CUE schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0], validateSchemaPath)
		if err != nil {
			return err
		}
		if _, err := cfg.Build(nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d robots, %d simulators, %d periodic)\n",
			args[0], cfg.NumRobots, len(cfg.Simulators), len(cfg.PeriodicSimulators))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateSchemaPath, "schema", "", "Path to CUE schema file (built-in schema when empty)")
}
