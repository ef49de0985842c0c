package fleet

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"robotfleet-sim/internal/clock"
	"robotfleet-sim/internal/network"
)

// Metrics receives fleet lifecycle observations. Implementations must be safe
// for concurrent use.
type Metrics interface {
	ObserveSimulation(robot, simulator string, d time.Duration, err error)
	ObserveConnect(robot string, err error)
	ObserveStop(robot string, err error)
	SetRunning(robot string, running bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSimulation(string, string, time.Duration, error) {}
func (noopMetrics) ObserveConnect(string, error)                          {}
func (noopMetrics) ObserveStop(string, error)                             {}
func (noopMetrics) SetRunning(string, bool)                               {}

type options struct {
	clock     clock.Clock
	logger    *slog.Logger
	metrics   Metrics
	network   *network.FakeNetwork
	connector network.Connector
	tracer    trace.TracerProvider
}

// Option customises fleet construction.
type Option func(*options)

// WithClock sets the clock driving periodic simulators.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger used by the fleet and its robots.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(o *options) { o.metrics = m } }

// WithNetwork shares an existing fake network bus. Ignored without fake
// networking.
func WithNetwork(n *network.FakeNetwork) Option { return func(o *options) { o.network = n } }

// WithConnector sets the real transport used when fake networking is off.
func WithConnector(c network.Connector) Option { return func(o *options) { o.connector = c } }

// WithTracerProvider sets the OpenTelemetry provider for fan-out spans.
func WithTracerProvider(tp trace.TracerProvider) Option { return func(o *options) { o.tracer = tp } }
