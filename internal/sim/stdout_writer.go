// Writer implementation printing robot state to STDOUT
package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"robotfleet-sim/internal/config"
	"robotfleet-sim/internal/simulator"
	"robotfleet-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
	colorWhite   = "\x1b[37m"
)

// StdoutWriter prints robot state rows either as JSON lines or, when
// colorize is set, as a human-friendly colored log with a one-time overview.
type StdoutWriter struct {
	cfg      *config.FleetConfig
	out      io.Writer
	colorize bool
	once     sync.Once
	mu       sync.Mutex
}

// NewStdoutWriter creates a StdoutWriter writing JSON to os.Stdout.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout}
}

// NewColorStdoutWriter creates a colorized StdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(cfg *config.FleetConfig) *StdoutWriter {
	return &StdoutWriter{cfg: cfg, out: os.Stdout, colorize: true}
}

// Write outputs a single state row.
func (w *StdoutWriter) Write(row telemetry.RobotStateRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.colorize {
		return w.printJSON(row)
	}
	w.once.Do(w.printOverview)

	roleColor := colorBlue
	if row.Role == simulator.RoleLeader {
		roleColor = colorMagenta
	}
	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, row.Timestamp.Format(time.RFC3339), colorReset)
	fmt.Fprintf(w.out, "%sfleet=%s%s ", colorBlue, row.FleetID, colorReset)
	fmt.Fprintf(w.out, "%srobot=%q%s ", colorWhite, row.Robot, colorReset)
	fmt.Fprintf(w.out, "%srole=%s%s ", roleColor, row.Role, colorReset)
	fmt.Fprintf(w.out, "%spose=(%.2f,%.2f,%.2f)%s ", colorGreen, row.X, row.Y, row.Theta, colorReset)
	fmt.Fprintf(w.out, "%sodom=(%.2f,%.2f)%s ", colorYellow, row.OdomX, row.OdomY, colorReset)
	fmt.Fprintf(w.out, "%sbatt=%.1f%%%s ", colorCyan, row.Battery*100, colorReset)
	fmt.Fprintf(w.out, "%stick=%d%s ", colorGray, row.Tick, colorReset)
	fmt.Fprintf(w.out, "%sstatus=%s%s", statusColor(row.Status), row.Status, colorReset)
	if row.Failures > 0 {
		fmt.Fprintf(w.out, " %sfailures=%d%s", colorRed, row.Failures, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteBatch outputs multiple state rows.
func (w *StdoutWriter) WriteBatch(rows []telemetry.RobotStateRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteHealth prints a fleet health summary.
func (w *StdoutWriter) WriteHealth(h telemetry.FleetHealthRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.colorize {
		return w.printJSON(h)
	}
	fmt.Fprintf(w.out, "%s[%s]%s %sHEALTH%s robots=%d connected=%d running=%d low_battery=%d failures=%d\n",
		colorGray, h.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, colorReset, h.Robots, h.Connected, h.Running, h.LowBattery, h.Failures)
	return nil
}

func (w *StdoutWriter) printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

func (w *StdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}
	fmt.Fprintln(w.out, "Fleet Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Fleet ID:\t%s\n", w.cfg.FleetID)
	fmt.Fprintf(tw, "Robots:\t%d\n", w.cfg.NumRobots)
	fmt.Fprintf(tw, "Fake Networking:\t%t\n", w.cfg.FakeNetworking)
	fmt.Fprintf(tw, "Manual Step:\t%s\n", time.Duration(w.cfg.ManualStep))
	tw.Flush()

	fmt.Fprintln(w.out, "\nSimulators:")
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name\tKind\tInterval\n")
	for _, s := range w.cfg.Simulators {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", displayName(s), s.Kind, "manual")
	}
	for _, p := range w.cfg.PeriodicSimulators {
		fmt.Fprintf(tw, "%s%s%s\t%s\t%gs\n", colorCyan, displayName(p.Simulator), colorReset, p.Simulator.Kind, p.IntervalSeconds)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

func displayName(s config.SimulatorSpec) string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind
}

func statusColor(status string) string {
	switch status {
	case telemetry.StatusDepleted:
		return colorRed
	case telemetry.StatusLowBattery:
		return colorYellow
	default:
		return colorGreen
	}
}
