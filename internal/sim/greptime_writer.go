package sim

import (
	"context"
	"fmt"
	"log/slog"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"robotfleet-sim/internal/logging"
	"robotfleet-sim/internal/telemetry"
)

// DefaultGreptimePort is the GreptimeDB gRPC port.
const DefaultGreptimePort = 4001

// greptimeClient is the subset of the ingester client used by the writer.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes robot state and fleet health to GreptimeDB via
// the ingester client. Tables are created by the server on first write.
type GreptimeDBWriter struct {
	client      greptimeClient
	stateTable  string
	healthTable string
	log         *slog.Logger
}

// NewGreptimeDBWriter connects to the GreptimeDB gRPC endpoint at host.
func NewGreptimeDBWriter(host string, port int, database string, log *slog.Logger) (*GreptimeDBWriter, error) {
	if port <= 0 {
		port = DefaultGreptimePort
	}
	cfg := greptime.NewConfig(host).WithDatabase(database).WithPort(port)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &GreptimeDBWriter{
		client:      client,
		stateTable:  telemetry.StateTableName,
		healthTable: "fleet_health",
		log:         log,
	}, nil
}

// Write inserts a single state row.
func (w *GreptimeDBWriter) Write(row telemetry.RobotStateRow) error {
	return w.WriteBatch([]telemetry.RobotStateRow{row})
}

// WriteBatch inserts multiple state rows in one request.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.RobotStateRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := stateTable(w.stateTable, rows)
	if err != nil {
		return err
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		w.logger().Error("greptime write failed", "table", w.stateTable, "err", err)
		return err
	}
	w.logger().Debug("greptime rows written", "table", w.stateTable, "rows", len(rows))
	return nil
}

// WriteHealth inserts a fleet health row.
func (w *GreptimeDBWriter) WriteHealth(h telemetry.FleetHealthRow) error {
	tbl, err := healthTable(w.healthTable, h)
	if err != nil {
		return err
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		w.logger().Error("greptime write failed", "table", w.healthTable, "err", err)
		return err
	}
	return nil
}

func (w *GreptimeDBWriter) logger() *slog.Logger {
	if w.log == nil {
		return logging.Discard()
	}
	return w.log
}

func stateTable(name string, rows []telemetry.RobotStateRow) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for _, tag := range []string{"fleet_id", "robot"} {
		if err := tbl.AddTagColumn(tag, types.STRING); err != nil {
			return nil, err
		}
	}
	fields := []struct {
		name string
		typ  types.ColumnType
	}{
		{"idx", types.INT64},
		{"role", types.STRING},
		{"status", types.STRING},
		{"x", types.FLOAT64},
		{"y", types.FLOAT64},
		{"theta", types.FLOAT64},
		{"odom_x", types.FLOAT64},
		{"odom_y", types.FLOAT64},
		{"odom_theta", types.FLOAT64},
		{"battery", types.FLOAT64},
		{"voltage", types.FLOAT64},
		{"gyro_z", types.FLOAT64},
		{"accel_x", types.FLOAT64},
		{"accel_y", types.FLOAT64},
		{"accel_z", types.FLOAT64},
		{"heartbeat", types.UINT64},
		{"tick", types.UINT64},
		{"failures", types.UINT64},
		{"connected", types.BOOLEAN},
		{"running", types.BOOLEAN},
	}
	for _, f := range fields {
		if err := tbl.AddFieldColumn(f.name, f.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	for _, r := range rows {
		err := tbl.AddRow(
			r.FleetID, r.Robot,
			int64(r.Index), r.Role, r.Status,
			r.X, r.Y, r.Theta,
			r.OdomX, r.OdomY, r.OdomTheta,
			r.Battery, r.Voltage, r.GyroZ,
			r.AccelX, r.AccelY, r.AccelZ,
			r.Heartbeat, r.Tick, r.Failures,
			r.Connected, r.Running,
			r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("row for %s: %w", r.Robot, err)
		}
	}
	return tbl, nil
}

func healthTable(name string, h telemetry.FleetHealthRow) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("fleet_id", types.STRING); err != nil {
		return nil, err
	}
	for _, f := range []string{"robots", "connected", "running", "low_battery"} {
		if err := tbl.AddFieldColumn(f, types.INT64); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddFieldColumn("failures", types.UINT64); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("min_battery", types.FLOAT64); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	err = tbl.AddRow(h.FleetID,
		int64(h.Robots), int64(h.Connected), int64(h.Running), int64(h.LowBattery),
		h.Failures, h.MinBattery, h.Timestamp)
	if err != nil {
		return nil, err
	}
	return tbl, nil
}
