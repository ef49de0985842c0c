package sim

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"robotfleet-sim/internal/telemetry"
)

// SQLiteWriter stores robot state and fleet health in a local SQLite file.
type SQLiteWriter struct {
	mu          sync.Mutex
	db          *sql.DB
	stateTable  string
	healthTable string
}

// NewSQLiteWriter opens (or creates) the database at path and its tables.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	w := &SQLiteWriter{db: db, stateTable: telemetry.StateTableName, healthTable: "fleet_health"}
	if err := w.createSchemas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schemas: %w", err)
	}
	return w, nil
}

func (w *SQLiteWriter) createSchemas() error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS ` + w.stateTable + ` (
			id TEXT PRIMARY KEY,
			fleet_id TEXT NOT NULL,
			robot TEXT NOT NULL,
			idx INTEGER NOT NULL,
			role TEXT,
			status TEXT,
			x REAL, y REAL, theta REAL,
			odom_x REAL, odom_y REAL, odom_theta REAL,
			battery REAL, voltage REAL, gyro_z REAL,
			accel_x REAL, accel_y REAL, accel_z REAL,
			heartbeat INTEGER, tick INTEGER, failures INTEGER,
			connected BOOLEAN NOT NULL DEFAULT 0,
			running BOOLEAN NOT NULL DEFAULT 0,
			ts DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + w.stateTable + `_robot_ts ON ` + w.stateTable + `(robot, ts);`,
		`CREATE TABLE IF NOT EXISTS ` + w.healthTable + ` (
			id TEXT PRIMARY KEY,
			fleet_id TEXT NOT NULL,
			robots INTEGER NOT NULL,
			connected INTEGER NOT NULL,
			running INTEGER NOT NULL,
			low_battery INTEGER NOT NULL,
			failures INTEGER NOT NULL,
			min_battery REAL,
			ts DATETIME NOT NULL
		);`,
	}
	for _, q := range schemas {
		if _, err := w.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Write inserts a single state row.
func (w *SQLiteWriter) Write(row telemetry.RobotStateRow) error {
	return w.WriteBatch([]telemetry.RobotStateRow{row})
}

// WriteBatch inserts rows in one transaction.
func (w *SQLiteWriter) WriteBatch(rows []telemetry.RobotStateRow) error {
	if len(rows) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO ` + w.stateTable + ` (
		id, fleet_id, robot, idx, role, status, x, y, theta,
		odom_x, odom_y, odom_theta, battery, voltage, gyro_z,
		accel_x, accel_y, accel_z, heartbeat, tick, failures,
		connected, running, ts
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		_, err := stmt.Exec(
			uuid.NewString(), r.FleetID, r.Robot, r.Index, r.Role, r.Status,
			r.X, r.Y, r.Theta, r.OdomX, r.OdomY, r.OdomTheta,
			r.Battery, r.Voltage, r.GyroZ, r.AccelX, r.AccelY, r.AccelZ,
			int64(r.Heartbeat), int64(r.Tick), int64(r.Failures),
			r.Connected, r.Running, r.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", r.Robot, err)
		}
	}
	return tx.Commit()
}

// WriteHealth inserts a fleet health row.
func (w *SQLiteWriter) WriteHealth(h telemetry.FleetHealthRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.db.Exec(`INSERT INTO `+w.healthTable+` (
		id, fleet_id, robots, connected, running, low_battery, failures, min_battery, ts
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), h.FleetID, h.Robots, h.Connected, h.Running, h.LowBattery,
		int64(h.Failures), h.MinBattery, h.Timestamp.UTC().Format(time.RFC3339Nano))
	return err
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
