// Robot state rows with greptime tags
package telemetry

import (
	"os"
	"time"

	"robotfleet-sim/internal/fleet"
)

// RobotStateRow is one flattened robot snapshot, ready for a writer.
type RobotStateRow struct {
	FleetID   string    `json:"fleet_id"` // TAG
	Robot     string    `json:"robot"`    // TAG
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Theta     float64   `json:"theta"`
	OdomX     float64   `json:"odom_x"`
	OdomY     float64   `json:"odom_y"`
	OdomTheta float64   `json:"odom_theta"`
	Battery   float64   `json:"battery"`
	Voltage   float64   `json:"voltage"`
	GyroZ     float64   `json:"gyro_z"`
	AccelX    float64   `json:"accel_x"`
	AccelY    float64   `json:"accel_y"`
	AccelZ    float64   `json:"accel_z"`
	Heartbeat uint64    `json:"heartbeat"`
	Tick      uint64    `json:"tick"`
	Failures  uint64    `json:"failures"`
	Connected bool      `json:"connected"`
	Running   bool      `json:"running"`
	Timestamp time.Time `json:"ts"` // TIME INDEX
}

// Robot status values derived from battery level.
const (
	StatusOK         = "ok"
	StatusLowBattery = "low_battery"
	StatusDepleted   = "depleted"
)

// LowBatteryThreshold is the battery fraction below which a robot reports
// StatusLowBattery.
const LowBatteryThreshold = 0.2

// StateTableName holds the table name used when writing to GreptimeDB or
// SQLite. It defaults to "robot_state" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var StateTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "robot_state"
}()

func (RobotStateRow) TableName() string {
	return StateTableName
}

// FromSnapshot flattens a robot snapshot.
func FromSnapshot(fleetID string, s fleet.RobotSnapshot) RobotStateRow {
	st := s.State
	return RobotStateRow{
		FleetID:   fleetID,
		Robot:     s.Name,
		Index:     s.Index,
		Role:      st.Role,
		Status:    status(st.Battery),
		X:         st.Pose.X,
		Y:         st.Pose.Y,
		Theta:     st.Pose.Theta,
		OdomX:     st.Odometry.X,
		OdomY:     st.Odometry.Y,
		OdomTheta: st.Odometry.Theta,
		Battery:   st.Battery,
		Voltage:   st.Voltage,
		GyroZ:     st.Gyro.Z,
		AccelX:    st.Accel.X,
		AccelY:    st.Accel.Y,
		AccelZ:    st.Accel.Z,
		Heartbeat: st.Heartbeat,
		Tick:      s.Tick,
		Failures:  s.Failures,
		Connected: s.Connected,
		Running:   s.Running,
		Timestamp: s.Time.UTC(),
	}
}

// Rows flattens a fleet snapshot in index order.
func Rows(fleetID string, snaps []fleet.RobotSnapshot) []RobotStateRow {
	rows := make([]RobotStateRow, len(snaps))
	for i, s := range snaps {
		rows[i] = FromSnapshot(fleetID, s)
	}
	return rows
}

func status(battery float64) string {
	switch {
	case battery <= 0:
		return StatusDepleted
	case battery < LowBatteryThreshold:
		return StatusLowBattery
	default:
		return StatusOK
	}
}

// FleetHealthRow summarises a fleet at one point in time.
type FleetHealthRow struct {
	FleetID    string    `json:"fleet_id"`
	Robots     int       `json:"robots"`
	Connected  int       `json:"connected"`
	Running    int       `json:"running"`
	LowBattery int       `json:"low_battery"`
	Failures   uint64    `json:"failures"`
	MinBattery float64   `json:"min_battery"`
	Timestamp  time.Time `json:"ts"`
}

// Health aggregates rows into a FleetHealthRow stamped with ts.
func Health(fleetID string, rows []RobotStateRow, ts time.Time) FleetHealthRow {
	h := FleetHealthRow{FleetID: fleetID, Robots: len(rows), Timestamp: ts.UTC()}
	for i, r := range rows {
		if r.Connected {
			h.Connected++
		}
		if r.Running {
			h.Running++
		}
		if r.Status != StatusOK {
			h.LowBattery++
		}
		h.Failures += r.Failures
		if i == 0 || r.Battery < h.MinBattery {
			h.MinBattery = r.Battery
		}
	}
	return h
}
