package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"robotfleet-sim/internal/simulator"
)

const validFleet = `
fleet_id: pitch-a
fake_networking: true
num_robots: 3
manual_step: 250ms
simulators:
  - kind: odometry
    params:
      speed: 0.3
  - kind: overview
periodic_simulators:
  - simulator:
      name: slow-battery
      kind: battery
      params:
        drain_per_second: 0.002
    interval_seconds: 0.5
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	cfg, err := Load(writeFile(t, validFleet), "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.FleetID != "pitch-a" || cfg.NumRobots != 3 || !cfg.FakeNetworking {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if time.Duration(cfg.ManualStep) != 250*time.Millisecond {
		t.Errorf("manual step = %v", time.Duration(cfg.ManualStep))
	}
	if time.Duration(cfg.PollInterval) != DefaultPollInterval {
		t.Errorf("poll interval default not applied: %v", time.Duration(cfg.PollInterval))
	}
	if len(cfg.PeriodicSimulators) != 1 || cfg.PeriodicSimulators[0].Simulator.Params["drain_per_second"] != 0.002 {
		t.Errorf("unexpected periodic simulators: %+v", cfg.PeriodicSimulators)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"negative robots":  "num_robots: -1\n",
		"missing robots":   "fake_networking: true\n",
		"zero interval":    "num_robots: 1\nperiodic_simulators:\n  - simulator: {kind: battery}\n    interval_seconds: 0\n",
		"missing kind":     "num_robots: 1\nsimulators:\n  - name: x\n",
		"unknown field":    "num_robots: 1\nrobots: 4\n",
		"bad duration":     "num_robots: 1\nmanual_step: soon\n",
		"bad transport":    "num_robots: 1\ntransport: {url: http://example}\n",
		"string param":     "num_robots: 1\nsimulators:\n  - kind: battery\n    params: {drain_per_second: fast}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body), ""); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_CustomSchema(t *testing.T) {
	schema := filepath.Join(t.TempDir(), "strict.cue")
	strict := strings.Replace(string(DefaultSchema()), "num_robots:       int & >=0", "num_robots:       int & >=0 & <=2", 1)
	if err := os.WriteFile(schema, []byte(strict), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	if _, err := Load(writeFile(t, validFleet), schema); err == nil {
		t.Errorf("expected custom schema to reject 3 robots")
	}
	if _, err := Load(writeFile(t, "num_robots: 2\n"), schema); err != nil {
		t.Errorf("custom schema rejected valid config: %v", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestBuild(t *testing.T) {
	cfg, err := Load(writeFile(t, validFleet), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fc, err := cfg.Build(simulator.DefaultRegistry())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if fc.NumRobots != 3 || !fc.FakeNetworking || fc.ManualStep != 250*time.Millisecond {
		t.Errorf("unexpected fleet config: %+v", fc)
	}
	if len(fc.Simulators) != 2 || fc.Simulators[0].Name() != "odometry" || fc.Simulators[1].Name() != "overview" {
		t.Fatalf("unexpected simulators: %+v", fc.Simulators)
	}
	if odo, ok := fc.Simulators[0].(simulator.Odometry); !ok || odo.Speed != 0.3 {
		t.Errorf("odometry params not applied: %+v", fc.Simulators[0])
	}
	p := fc.PeriodicSimulators
	if len(p) != 1 || p[0].Interval != 500*time.Millisecond || p[0].Simulator.Name() != "slow-battery" {
		t.Errorf("unexpected periodic simulators: %+v", p)
	}
}

func TestBuildUnknownKind(t *testing.T) {
	cfg, err := Parse([]byte("num_robots: 1\nsimulators:\n  - kind: teleport\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := cfg.Build(nil); err == nil || !strings.Contains(err.Error(), "teleport") {
		t.Errorf("Build = %v, want unknown kind error", err)
	}
}
