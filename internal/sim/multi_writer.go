package sim

import (
	"errors"
	"io"

	"robotfleet-sim/internal/telemetry"
)

// MultiWriter fans out state and health rows to multiple writers.
type MultiWriter struct {
	writers []StateWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...StateWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Write sends a state row to all writers.
func (mw *MultiWriter) Write(row telemetry.RobotStateRow) error {
	for _, w := range mw.writers {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple state rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.RobotStateRow) error {
	for _, w := range mw.writers {
		if err := writeRows(w, rows); err != nil {
			return err
		}
	}
	return nil
}

// WriteHealth forwards a health row to every writer that accepts one.
func (mw *MultiWriter) WriteHealth(row telemetry.FleetHealthRow) error {
	for _, w := range mw.writers {
		if hw, ok := w.(HealthWriter); ok {
			if err := hw.WriteHealth(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetAdminStatus forwards admin UI status to writers that display it.
func (mw *MultiWriter) SetAdminStatus(listening bool) {
	for _, w := range mw.writers {
		if aw, ok := w.(AdminStatusWriter); ok {
			aw.SetAdminStatus(listening)
		}
	}
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
