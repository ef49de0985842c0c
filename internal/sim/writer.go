// Snapshot polling runner and the writers it feeds
package sim

import (
	"robotfleet-sim/internal/telemetry"
)

// StateWriter is an interface to support different output writers.
type StateWriter interface {
	Write(telemetry.RobotStateRow) error
}

// Optional: Writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.RobotStateRow) error
}

// HealthWriter receives fleet health summaries, one per sample.
type HealthWriter interface {
	WriteHealth(telemetry.FleetHealthRow) error
}

// AdminStatusWriter allows writers to receive admin UI status updates.
type AdminStatusWriter interface {
	SetAdminStatus(listening bool)
}

func writeRows(w StateWriter, rows []telemetry.RobotStateRow) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
