package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"robotfleet-sim/internal/fleet"
	"robotfleet-sim/internal/logging"
	"robotfleet-sim/internal/telemetry"
)

// Fleet is the part of a virtual fleet the runner drives.
type Fleet interface {
	Snapshot() []fleet.RobotSnapshot
	SimulateAll(ctx context.Context) error
}

// Runner polls fleet snapshots on an interval and hands the rows to a writer.
// It only reads the fleet, so a slow writer never holds up simulation.
type Runner struct {
	fleetID  string
	fleet    Fleet
	writer   StateWriter
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	last    []telemetry.RobotStateRow
	health  telemetry.FleetHealthRow
	samples uint64
}

// NewRunner creates a runner. A nil now uses time.Now.
func NewRunner(fleetID string, f Fleet, writer StateWriter, interval time.Duration, now func() time.Time) *Runner {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Runner{
		fleetID:  fleetID,
		fleet:    f,
		writer:   writer,
		interval: interval,
		now:      now,
	}
}

// FleetID returns the identifier stamped on every row.
func (r *Runner) FleetID() string { return r.fleetID }

// Run samples the fleet every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting snapshot runner", "poll_interval", r.interval, "fleet_id", r.fleetID)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sample(ctx)
		case <-ctx.Done():
			log.Info("stopping snapshot runner", "samples", r.Samples())
			return
		}
	}
}

// Sample snapshots the fleet once, records the rows and writes them.
func (r *Runner) Sample(ctx context.Context) []telemetry.RobotStateRow {
	log := logging.FromContext(ctx)
	rows := telemetry.Rows(r.fleetID, r.fleet.Snapshot())
	health := telemetry.Health(r.fleetID, rows, r.now())

	r.mu.Lock()
	r.last = rows
	r.health = health
	r.samples++
	r.mu.Unlock()

	if r.writer == nil {
		return rows
	}
	if err := writeRows(r.writer, rows); err != nil {
		log.Error("state write failed", "rows", len(rows), "err", err)
	}
	if hw, ok := r.writer.(HealthWriter); ok {
		if err := hw.WriteHealth(health); err != nil {
			log.Error("health write failed", "err", err)
		}
	}
	return rows
}

// Step runs n manual simulation passes, sampling after each. Simulator
// failures are logged and returned joined; every pass still runs.
func (r *Runner) Step(ctx context.Context, n int) error {
	log := logging.FromContext(ctx)
	var errs []error
	for i := 0; i < n; i++ {
		if err := r.fleet.SimulateAll(ctx); err != nil {
			log.Warn("simulation pass had failures", "pass", i+1, "err", err)
			errs = append(errs, err)
		}
		r.Sample(ctx)
	}
	return errors.Join(errs...)
}

// Current snapshots the fleet without recording or writing the rows.
func (r *Runner) Current() []telemetry.RobotStateRow {
	return telemetry.Rows(r.fleetID, r.fleet.Snapshot())
}

// Latest returns the rows of the most recent sample.
func (r *Runner) Latest() []telemetry.RobotStateRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.RobotStateRow(nil), r.last...)
}

// Health returns the fleet summary of the most recent sample.
func (r *Runner) Health() telemetry.FleetHealthRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.health
}

// Samples reports how many samples have been taken.
func (r *Runner) Samples() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}
