// YAML fleet config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"robotfleet-sim/internal/fleet"
	"robotfleet-sim/internal/simulator"
)

// Defaults applied when the YAML leaves a field unset.
const (
	DefaultFleetID      = "fleet-01"
	DefaultManualStep   = 100 * time.Millisecond
	DefaultPollInterval = time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// Duration is a time.Duration read from strings such as "250ms".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// SimulatorSpec names a simulator kind from the registry and its parameters.
type SimulatorSpec struct {
	Name   string             `yaml:"name"`
	Kind   string             `yaml:"kind"`
	Params map[string]float64 `yaml:"params"`
}

// PeriodicSimulatorSpec binds a simulator to a fixed interval.
type PeriodicSimulatorSpec struct {
	Simulator       SimulatorSpec `yaml:"simulator"`
	IntervalSeconds float64       `yaml:"interval_seconds"`
}

// Transport configures the real network used when fake networking is off.
type Transport struct {
	URL          string   `yaml:"url"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// FleetConfig is the root configuration for a virtual fleet.
type FleetConfig struct {
	FleetID            string                  `yaml:"fleet_id"`
	FakeNetworking     bool                    `yaml:"fake_networking"`
	NumRobots          int                     `yaml:"num_robots"`
	ManualStep         Duration                `yaml:"manual_step"`
	PollInterval       Duration                `yaml:"poll_interval"`
	Simulators         []SimulatorSpec         `yaml:"simulators"`
	PeriodicSimulators []PeriodicSimulatorSpec `yaml:"periodic_simulators"`
	Transport          Transport               `yaml:"transport"`
}

// Load reads a YAML config after validating it against the CUE schema at
// cueSchemaPath, or the built-in schema when the path is empty.
func Load(configPath, cueSchemaPath string) (*FleetConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML without schema validation and fills defaults.
func Parse(data []byte) (*FleetConfig, error) {
	var cfg FleetConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *FleetConfig) applyDefaults() {
	if c.FleetID == "" {
		c.FleetID = DefaultFleetID
	}
	if c.ManualStep <= 0 {
		c.ManualStep = Duration(DefaultManualStep)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.Transport.WriteTimeout <= 0 {
		c.Transport.WriteTimeout = Duration(DefaultWriteTimeout)
	}
}

// Build turns the declarative config into a fleet.Config, instantiating each
// simulator once through reg so every robot shares the same instances.
func (c *FleetConfig) Build(reg *simulator.Registry) (fleet.Config, error) {
	if reg == nil {
		reg = simulator.DefaultRegistry()
	}
	out := fleet.Config{
		FakeNetworking: c.FakeNetworking,
		NumRobots:      c.NumRobots,
		ManualStep:     time.Duration(c.ManualStep),
	}
	for i, s := range c.Simulators {
		sim, err := reg.Build(s.Kind, s.Name, simulator.Params(s.Params))
		if err != nil {
			return fleet.Config{}, fmt.Errorf("simulators[%d]: %w", i, err)
		}
		out.Simulators = append(out.Simulators, sim)
	}
	for i, p := range c.PeriodicSimulators {
		if p.IntervalSeconds <= 0 {
			return fleet.Config{}, fmt.Errorf("periodic_simulators[%d]: interval_seconds must be > 0, got %v", i, p.IntervalSeconds)
		}
		sim, err := reg.Build(p.Simulator.Kind, p.Simulator.Name, simulator.Params(p.Simulator.Params))
		if err != nil {
			return fleet.Config{}, fmt.Errorf("periodic_simulators[%d]: %w", i, err)
		}
		out.PeriodicSimulators = append(out.PeriodicSimulators, simulator.Periodic{
			Simulator: sim,
			Interval:  time.Duration(p.IntervalSeconds * float64(time.Second)),
		})
	}
	return out, nil
}
