package main

import (
	"os"

	"github.com/spf13/cobra"

	"robotfleet-sim/internal/config"
	"robotfleet-sim/internal/dashboard"
)

var (
	dashboardOut     string
	dashboardFleetID string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		id := dashboardFleetID
		if id == "" {
			id = os.Getenv("FLEET_ID")
		}
		if id == "" {
			id = config.DefaultFleetID
		}
		return dashboard.Render(dashboardOut, dashboard.DefaultParams(id))
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardFleetID, "fleet-id", "", "Fleet to chart (default FLEET_ID or "+config.DefaultFleetID+")")
}
