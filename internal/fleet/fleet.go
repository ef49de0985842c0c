// Virtual robot fleet: construction, lifecycle fan-out and staggered periodic
// simulation
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"robotfleet-sim/internal/clock"
	"robotfleet-sim/internal/network"
	"robotfleet-sim/internal/simulator"
)

const tracerName = "robotfleet-sim/internal/fleet"

// Config describes a fleet. The simulator lists are shared by every robot.
type Config struct {
	FakeNetworking     bool
	NumRobots          int
	Simulators         []simulator.Simulator
	PeriodicSimulators []simulator.Periodic
	ManualStep         time.Duration
}

// VirtualRobots is a fixed, ordered fleet of virtual robots.
type VirtualRobots struct {
	robots  []*VirtualRobot
	net     *network.FakeNetwork
	log     *slog.Logger
	metrics Metrics
	tracer  trace.Tracer

	mu      sync.Mutex
	started bool
}

// RobotName returns the display name of the robot at index.
func RobotName(index int) string {
	return fmt.Sprintf("Virtual Robot #%d", index+1)
}

// New builds a fleet of cfg.NumRobots robots. No fleet is returned on error.
func New(cfg Config, opts ...Option) (*VirtualRobots, error) {
	if cfg.NumRobots < 0 {
		return nil, fmt.Errorf("num robots must be >= 0, got %d", cfg.NumRobots)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider()
	}

	f := &VirtualRobots{
		log:     o.logger,
		metrics: o.metrics,
		tracer:  o.tracer.Tracer(tracerName),
	}
	if cfg.FakeNetworking {
		f.net = o.network
		if f.net == nil {
			f.net = network.NewFakeNetwork()
		}
	}

	// one copy shared read-only by every robot
	sims := append([]simulator.Simulator(nil), cfg.Simulators...)
	periodic := append([]simulator.Periodic(nil), cfg.PeriodicSimulators...)

	f.robots = make([]*VirtualRobot, 0, cfg.NumRobots)
	for i := 0; i < cfg.NumRobots; i++ {
		name := RobotName(i)
		var ep network.Endpoint
		if cfg.FakeNetworking {
			ep = f.net.Endpoint(name)
		} else {
			ep = network.NewTransportEndpoint(name, o.connector)
		}
		r, err := NewVirtualRobot(RobotOptions{
			Name:           name,
			FakeNetworking: cfg.FakeNetworking,
			Simulators:     sims,
			Periodic:       periodic,
			ManualStep:     cfg.ManualStep,
			Initial:        simulator.InitialState(i, cfg.NumRobots),
			Endpoint:       ep,
			Clock:          o.clock,
			Logger:         o.logger,
			Metrics:        o.metrics,
		})
		if err != nil {
			return nil, err
		}
		f.robots = append(f.robots, r)
	}
	f.log.Info("fleet created",
		"robots", cfg.NumRobots,
		"fake_networking", cfg.FakeNetworking,
		"simulators", len(sims),
		"periodic_simulators", len(periodic))
	return f, nil
}

// Robots returns the fleet members in index order.
func (f *VirtualRobots) Robots() []*VirtualRobot {
	return append([]*VirtualRobot(nil), f.robots...)
}

// Len returns the fleet size.
func (f *VirtualRobots) Len() int { return len(f.robots) }

// Network returns the fake bus, or nil when the fleet uses real transports.
func (f *VirtualRobots) Network() *network.FakeNetwork { return f.net }

// Connect connects every robot in index order. A failing robot does not stop
// the others; all failures are returned joined.
func (f *VirtualRobots) Connect(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "fleet.connect",
		trace.WithAttributes(attribute.Int("fleet.robots", len(f.robots))))
	defer span.End()

	var errs []error
	for _, r := range f.robots {
		if err := r.Connect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
	}
	return err
}

// Disconnect closes every robot endpoint, best effort.
func (f *VirtualRobots) Disconnect(ctx context.Context) error {
	var errs []error
	for _, r := range f.robots {
		if err := r.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// StartSimulators starts the periodic simulators of every robot, staggered by
// fleet position. The returned StopFunc stops every robot in index order,
// continuing past failures, and reports them joined.
func (f *VirtualRobots) StartSimulators(ctx context.Context) (StopFunc, error) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	f.started = true
	f.mu.Unlock()

	total := len(f.robots)
	stops := make([]StopFunc, 0, total)
	for i, r := range f.robots {
		stop, err := r.StartSimulators(ctx, i, total)
		if err != nil {
			for _, s := range stops {
				_ = s()
			}
			f.setStarted(false)
			return nil, fmt.Errorf("start %s: %w", r.Name(), err)
		}
		stops = append(stops, stop)
	}
	f.log.Info("periodic simulators started", "robots", total)

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			var errs []error
			for i, s := range stops {
				if e := safeStop(f.robots[i].Name(), s); e != nil {
					errs = append(errs, e)
				}
			}
			f.setStarted(false)
			err = errors.Join(errs...)
			if err != nil {
				f.log.Warn("periodic simulators stopped with failures", "err", err)
				return
			}
			f.log.Info("periodic simulators stopped", "robots", total)
		})
		return err
	}, nil
}

// safeStop keeps a panicking robot stop from ending the fleet teardown early.
func safeStop(robot string, stop StopFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &StopError{Robot: robot, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return stop()
}

func (f *VirtualRobots) setStarted(v bool) {
	f.mu.Lock()
	f.started = v
	f.mu.Unlock()
}

// SimulateAll runs one manual pass on every robot in index order. Simulator
// failures are returned joined after the whole fleet has been stepped.
func (f *VirtualRobots) SimulateAll(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "fleet.simulate_all",
		trace.WithAttributes(attribute.Int("fleet.robots", len(f.robots))))
	defer span.End()

	total := len(f.robots)
	var errs []error
	for i, r := range f.robots {
		if err := r.SimulateAll(ctx, i, total); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "simulator failures")
	}
	return err
}

// Snapshot returns a copy of every robot's state in index order. It never
// waits on periodic work beyond a single robot's current pass.
func (f *VirtualRobots) Snapshot() []RobotSnapshot {
	out := make([]RobotSnapshot, len(f.robots))
	for i, r := range f.robots {
		s := r.Snapshot()
		s.Index = i
		out[i] = s
	}
	return out
}
