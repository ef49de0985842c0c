// Prometheus metrics and OpenTelemetry tracing for the robot fleet
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// FleetCollector bundles Prometheus metrics for a virtual robot fleet. It
// satisfies fleet.Metrics.
type FleetCollector struct {
	gatherer prometheus.Gatherer

	SimulatorRuns      *prometheus.CounterVec
	SimulatorDurations *prometheus.HistogramVec
	Connects           *prometheus.CounterVec
	Stops              *prometheus.CounterVec
	RobotsRunning      *prometheus.GaugeVec
	FleetSize          prometheus.Gauge
}

// NewFleetCollector registers fleet metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewFleetCollector(reg prometheus.Registerer) (*FleetCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "robotfleet_simulator_runs_total",
		Help: "Simulator invocations, labeled by robot, simulator and result.",
	}, []string{"robot", "simulator", "result"}), "robotfleet_simulator_runs_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "robotfleet_simulator_duration_seconds",
		Help:    "Simulator Advance latency in seconds.",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"simulator"}), "robotfleet_simulator_duration_seconds")
	if err != nil {
		return nil, err
	}

	connects, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "robotfleet_connects_total",
		Help: "Robot connect attempts, labeled by robot and result.",
	}, []string{"robot", "result"}), "robotfleet_connects_total")
	if err != nil {
		return nil, err
	}

	stops, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "robotfleet_stops_total",
		Help: "Per-robot stops of periodic simulators, labeled by result.",
	}, []string{"result"}), "robotfleet_stops_total")
	if err != nil {
		return nil, err
	}

	running, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "robotfleet_robot_running",
		Help: "1 while a robot's periodic simulators are active.",
	}, []string{"robot"}), "robotfleet_robot_running")
	if err != nil {
		return nil, err
	}

	size, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "robotfleet_robots",
		Help: "Number of robots in the fleet.",
	}), "robotfleet_robots")
	if err != nil {
		return nil, err
	}

	return &FleetCollector{
		gatherer:           gatherer,
		SimulatorRuns:      runs,
		SimulatorDurations: durations,
		Connects:           connects,
		Stops:              stops,
		RobotsRunning:      running,
		FleetSize:          size,
	}, nil
}

// ObserveSimulation records one Advance call.
func (c *FleetCollector) ObserveSimulation(robot, simulator string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.SimulatorRuns.WithLabelValues(robot, simulator, result(err)).Inc()
	c.SimulatorDurations.WithLabelValues(simulator).Observe(d.Seconds())
}

// ObserveConnect records one connect attempt.
func (c *FleetCollector) ObserveConnect(robot string, err error) {
	if c == nil {
		return
	}
	c.Connects.WithLabelValues(robot, result(err)).Inc()
}

// ObserveStop records one robot stop.
func (c *FleetCollector) ObserveStop(_ string, err error) {
	if c == nil {
		return
	}
	c.Stops.WithLabelValues(result(err)).Inc()
}

// SetRunning flips the running gauge of a robot.
func (c *FleetCollector) SetRunning(robot string, running bool) {
	if c == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	c.RobotsRunning.WithLabelValues(robot).Set(v)
}

// SetFleetSize records the number of robots.
func (c *FleetCollector) SetFleetSize(n int) {
	if c == nil {
		return
	}
	c.FleetSize.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *FleetCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
