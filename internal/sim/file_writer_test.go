package sim

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"robotfleet-sim/internal/telemetry"
)

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	ts := time.Unix(0, 0).UTC()
	statePath := filepath.Join(dir, "state.jsonl")
	healthPath := filepath.Join(dir, "health.jsonl")

	fw, err := NewFileWriter(statePath, healthPath)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	rows := []telemetry.RobotStateRow{
		{FleetID: "f1", Robot: "Virtual Robot #1", X: 1.5, Battery: 0.9, Timestamp: ts},
		{FleetID: "f1", Robot: "Virtual Robot #2", X: -2, Battery: 0.4, Timestamp: ts},
	}
	if err := fw.WriteBatch(rows); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := fw.WriteHealth(telemetry.Health("f1", rows, ts)); err != nil {
		t.Fatalf("write health: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(statePath)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	defer f.Close()
	var got []telemetry.RobotStateRow
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r telemetry.RobotStateRow
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[1].Robot != "Virtual Robot #2" || got[1].X != -2 {
		t.Fatalf("unexpected state rows: %#v", got)
	}

	data, err := os.ReadFile(healthPath)
	if err != nil {
		t.Fatalf("read health: %v", err)
	}
	var h telemetry.FleetHealthRow
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if h.Robots != 2 || h.MinBattery != 0.4 {
		t.Errorf("unexpected health: %#v", h)
	}
}

func TestFileWriterWithoutHealth(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(filepath.Join(dir, "state.jsonl"), "")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer fw.Close()
	if err := fw.WriteHealth(telemetry.FleetHealthRow{}); err != nil {
		t.Errorf("health write without a path should be a no-op, got %v", err)
	}
}

func TestFileWriterBadPath(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFileWriter(filepath.Join(dir, "missing", "state.jsonl"), ""); err == nil {
		t.Fatal("expected error for missing directory")
	}
	if _, err := NewFileWriter(filepath.Join(dir, "state.jsonl"), filepath.Join(dir, "missing", "h.jsonl")); err == nil {
		t.Fatal("expected error for missing health directory")
	}
}
