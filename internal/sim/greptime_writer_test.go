package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"robotfleet-sim/internal/telemetry"
)

type mockGreptimeClient struct {
	tables []*table.Table
	err    error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.tables = append(m.tables, tables...)
	if m.err != nil {
		return nil, m.err
	}
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterStateRows(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	rows := []telemetry.RobotStateRow{
		{FleetID: "f1", Robot: "Virtual Robot #1", Role: "leader", Status: telemetry.StatusOK, X: 1, Battery: 0.9, Tick: 3, Connected: true, Timestamp: ts},
		{FleetID: "f1", Robot: "Virtual Robot #2", Index: 1, Role: "follower", Status: telemetry.StatusOK, Timestamp: ts},
	}

	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, stateTable: "robot_state"}
	if err := w.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatalf("expected one table per batch, got %d", len(m.tables))
	}

	got := m.tables[0].GetRows()
	schema := got.Schema
	if schema[0].SemanticType != gpb.SemanticType_TAG || schema[1].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("fleet_id and robot should be tags: %v", schema[:2])
	}
	last := schema[len(schema)-1]
	if last.SemanticType != gpb.SemanticType_TIMESTAMP || last.Datatype != gpb.ColumnDataType_TIMESTAMP_MILLISECOND {
		t.Fatalf("last column should be the millisecond time index: %v", last)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Rows))
	}
	if v := got.Rows[1].Values[1].GetStringValue(); v != "Virtual Robot #2" {
		t.Fatalf("robot = %s, want Virtual Robot #2", v)
	}
}

func TestGreptimeWriterEmptyBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, stateTable: "robot_state"}
	if err := w.WriteBatch(nil); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(m.tables) != 0 {
		t.Fatalf("empty batch should not hit the client")
	}
}

func TestGreptimeWriterHealth(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, healthTable: "fleet_health"}
	h := telemetry.FleetHealthRow{FleetID: "f1", Robots: 4, Connected: 3, MinBattery: 0.25, Timestamp: time.Unix(0, 0).UTC()}
	if err := w.WriteHealth(h); err != nil {
		t.Fatalf("WriteHealth: %v", err)
	}
	rows := m.tables[0].GetRows()
	if v := rows.Rows[0].Values[0].GetStringValue(); v != "f1" {
		t.Fatalf("fleet_id = %s, want f1", v)
	}
	if v := rows.Rows[0].Values[1].GetI64Value(); v != 4 {
		t.Fatalf("robots = %d, want 4", v)
	}
}

func TestGreptimeWriterClientError(t *testing.T) {
	boom := errors.New("unavailable")
	w := &GreptimeDBWriter{client: &mockGreptimeClient{err: boom}, stateTable: "robot_state"}
	if err := w.Write(telemetry.RobotStateRow{FleetID: "f1", Robot: "r", Timestamp: time.Unix(0, 0)}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
