package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"robotfleet-sim/internal/telemetry"
)

type collectWriter struct{ rows []telemetry.RobotStateRow }

func (c *collectWriter) Write(r telemetry.RobotStateRow) error {
	c.rows = append(c.rows, r)
	return nil
}

func encodeRows(t *testing.T, rows []telemetry.RobotStateRow) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	return &buf
}

func TestReplayLog(t *testing.T) {
	rows := []telemetry.RobotStateRow{
		{FleetID: "f1", Robot: "Virtual Robot #1", Timestamp: time.Unix(0, 0)},
		{FleetID: "f1", Robot: "Virtual Robot #2", Timestamp: time.Unix(1, 0)},
	}
	cw := &collectWriter{}
	if err := ReplayLog(context.Background(), encodeRows(t, rows), cw, 0); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if len(cw.rows) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(cw.rows))
	}
	for i, r := range rows {
		if cw.rows[i].Robot != r.Robot {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, cw.rows[i], r)
		}
	}
}

func TestReplayLogCancelled(t *testing.T) {
	rows := []telemetry.RobotStateRow{
		{Robot: "a", Timestamp: time.Unix(0, 0)},
		{Robot: "b", Timestamp: time.Unix(3600, 0)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cw := &collectWriter{}
	err := ReplayLog(ctx, encodeRows(t, rows), cw, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(cw.rows) != 1 {
		t.Fatalf("expected only the first row before the delay, got %d", len(cw.rows))
	}
}

func TestReplayLogBadInput(t *testing.T) {
	if err := ReplayLog(context.Background(), strings.NewReader("{not json"), &collectWriter{}, 0); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestReplayLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.jsonl")
	buf := encodeRows(t, []telemetry.RobotStateRow{{Robot: "Virtual Robot #1", Timestamp: time.Unix(0, 0)}})
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cw := &collectWriter{}
	if err := ReplayLogFile(context.Background(), path, cw, 0); err != nil {
		t.Fatalf("ReplayLogFile: %v", err)
	}
	if len(cw.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(cw.rows))
	}
}
