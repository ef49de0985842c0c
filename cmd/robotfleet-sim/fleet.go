package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"robotfleet-sim/internal/config"
	"robotfleet-sim/internal/fleet"
	"robotfleet-sim/internal/network"
	"robotfleet-sim/internal/observability"
)

// loadConfig reads the fleet config and applies FLEET_ID and POLL_INTERVAL
// environment overrides.
func loadConfig(path, schema string) (*config.FleetConfig, error) {
	cfg, err := config.Load(path, schema)
	if err != nil {
		return nil, err
	}
	if id := os.Getenv("FLEET_ID"); id != "" {
		cfg.FleetID = id
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = config.Duration(d)
	}
	return cfg, nil
}

// buildFleet constructs the virtual fleet described by cfg. A nil collector
// leaves metrics disabled.
func buildFleet(cfg *config.FleetConfig, log *slog.Logger, collector *observability.FleetCollector) (*fleet.VirtualRobots, error) {
	fcfg, err := cfg.Build(nil)
	if err != nil {
		return nil, err
	}
	opts := []fleet.Option{fleet.WithLogger(log)}
	if collector != nil {
		opts = append(opts, fleet.WithMetrics(collector))
	}
	if !cfg.FakeNetworking {
		if cfg.Transport.URL == "" {
			return nil, fmt.Errorf("transport.url is required when fake_networking is false")
		}
		opts = append(opts, fleet.WithConnector(&network.WebsocketConnector{
			URL:          cfg.Transport.URL,
			WriteTimeout: time.Duration(cfg.Transport.WriteTimeout),
		}))
	}
	f, err := fleet.New(fcfg, opts...)
	if err != nil {
		return nil, err
	}
	collector.SetFleetSize(f.Len())
	return f, nil
}
