package sim

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"robotfleet-sim/internal/telemetry"
)

// FileWriter writes robot state and fleet health to JSONL files.
type FileWriter struct {
	mu         sync.Mutex
	stateFile  *os.File
	healthFile *os.File
	stateEnc   *json.Encoder
	healthEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. healthPath may be empty to skip the
// health log.
func NewFileWriter(statePath, healthPath string) (*FileWriter, error) {
	sf, err := os.Create(statePath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{stateFile: sf, stateEnc: json.NewEncoder(sf)}
	if healthPath != "" {
		hf, err := os.Create(healthPath)
		if err != nil {
			sf.Close()
			return nil, err
		}
		fw.healthFile = hf
		fw.healthEnc = json.NewEncoder(hf)
	}
	return fw, nil
}

// Write logs a single state row.
func (f *FileWriter) Write(row telemetry.RobotStateRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateEnc.Encode(row)
}

// WriteBatch logs multiple state rows.
func (f *FileWriter) WriteBatch(rows []telemetry.RobotStateRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if err := f.stateEnc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteHealth logs a fleet health row, if enabled.
func (f *FileWriter) WriteHealth(row telemetry.FleetHealthRow) error {
	if f.healthEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var errs []error
	if f.stateFile != nil {
		errs = append(errs, f.stateFile.Close())
	}
	if f.healthFile != nil {
		errs = append(errs, f.healthFile.Close())
	}
	return errors.Join(errs...)
}
