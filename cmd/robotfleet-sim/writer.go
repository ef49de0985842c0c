package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"golang.org/x/term"

	"robotfleet-sim/internal/config"
	"robotfleet-sim/internal/sim"
)

// Output modes for STDOUT writers.
const (
	outputAuto  = "auto"
	outputTUI   = "tui"
	outputColor = "color"
	outputJSON  = "json"
)

type writerOptions struct {
	PrintOnly  bool
	Output     string
	LogFile    string
	SQLitePath string
}

// newWriters builds the state writer from flags and env vars. It returns the
// writer and a cleanup function closing any resources.
func newWriters(cfg *config.FleetConfig, opts writerOptions, log *slog.Logger) (sim.StateWriter, func(), error) {
	base, err := baseWriter(cfg, opts, log)
	if err != nil {
		return nil, nil, err
	}
	writers := []sim.StateWriter{base}
	if opts.LogFile != "" {
		fw, err := sim.NewFileWriter(opts.LogFile, opts.LogFile+".health")
		if err != nil {
			closeWriters(writers)
			return nil, nil, err
		}
		writers = append(writers, fw)
	}
	if opts.SQLitePath != "" {
		sw, err := sim.NewSQLiteWriter(opts.SQLitePath)
		if err != nil {
			closeWriters(writers)
			return nil, nil, err
		}
		writers = append(writers, sw)
	}
	if len(writers) == 1 {
		return base, func() { closeWriters(writers) }, nil
	}
	mw := sim.NewMultiWriter(writers...)
	return mw, func() { _ = mw.Close() }, nil
}

func closeWriters(ws []sim.StateWriter) {
	_ = sim.NewMultiWriter(ws...).Close()
}

// baseWriter chooses GreptimeDB when GREPTIMEDB_ENDPOINT is set, STDOUT otherwise.
func baseWriter(cfg *config.FleetConfig, opts writerOptions, log *slog.Logger) (sim.StateWriter, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if opts.PrintOnly || endpoint == "" {
		return stdoutWriter(cfg, opts.Output)
	}
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	log.Info("writing to GreptimeDB", "host", host, "port", port, "database", database)
	w, err := sim.NewGreptimeDBWriter(host, port, database, log)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func stdoutWriter(cfg *config.FleetConfig, output string) (sim.StateWriter, error) {
	if output == "" || output == outputAuto {
		output = outputJSON
		if term.IsTerminal(int(os.Stdout.Fd())) {
			output = outputColor
		}
	}
	switch output {
	case outputTUI:
		return sim.NewTUIWriter(cfg), nil
	case outputColor:
		return sim.NewColorStdoutWriter(cfg), nil
	case outputJSON:
		return sim.NewStdoutWriter(), nil
	default:
		return nil, fmt.Errorf("unknown output %q (want auto, tui, color or json)", output)
	}
}

// splitEndpoint accepts "host" or "host:port".
func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, sim.DefaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid GREPTIMEDB_ENDPOINT port %q: %w", portStr, err)
	}
	return host, port, nil
}
