package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"robotfleet-sim/internal/clock"
	"robotfleet-sim/internal/network"
	"robotfleet-sim/internal/simulator"
)

// DefaultManualStep is the elapsed time reported to simulators on a manual
// SimulateAll pass.
const DefaultManualStep = 100 * time.Millisecond

// StopFunc cancels a run of periodic simulators. It is safe to call more than
// once; only the first call does any work and returns its error.
type StopFunc func() error

// RobotOptions configures a single virtual robot.
type RobotOptions struct {
	Name           string
	FakeNetworking bool
	Simulators     []simulator.Simulator
	Periodic       []simulator.Periodic
	ManualStep     time.Duration
	Initial        simulator.State
	// Endpoint defaults to a private fake bus when FakeNetworking is set and
	// to an unconfigured transport otherwise.
	Endpoint network.Endpoint
	Clock    clock.Clock
	Logger   *slog.Logger
	Metrics  Metrics
}

// RobotSnapshot is a point-in-time copy of a robot's observable state.
type RobotSnapshot struct {
	Index     int             `json:"index"`
	Name      string          `json:"name"`
	Connected bool            `json:"connected"`
	Running   bool            `json:"running"`
	Tick      uint64          `json:"tick"`
	Failures  uint64          `json:"failures"`
	State     simulator.State `json:"state"`
	Time      time.Time       `json:"time"`
}

// VirtualRobot is one simulated robot. All state mutation, manual or periodic,
// is serialised by mu.
type VirtualRobot struct {
	name           string
	fakeNetworking bool
	simulators     []simulator.Simulator
	periodic       []simulator.Periodic
	manualStep     time.Duration
	endpoint       network.Endpoint
	clock          clock.Clock
	log            *slog.Logger
	metrics        Metrics

	mu       sync.Mutex
	state    simulator.State
	seq      uint64
	failures uint64
	run      *run

	// pubMu orders sends; lastSent drops states older than one already sent.
	pubMu    sync.Mutex
	lastSent uint64
}

// run is one StartSimulators activation. Callbacks belonging to a stopped run
// are ignored even if their timer could not be cancelled.
type run struct {
	index   int
	total   int
	stopped bool
	loops   []*loop
}

type loop struct {
	periodic simulator.Periodic
	due      time.Time
	timer    clock.Timer
}

// NewVirtualRobot creates a robot from opts. The simulator slices are shared,
// not copied; callers must not mutate them afterwards.
func NewVirtualRobot(opts RobotOptions) (*VirtualRobot, error) {
	if opts.Name == "" {
		return nil, errors.New("robot name is required")
	}
	for _, s := range opts.Simulators {
		if s == nil {
			return nil, fmt.Errorf("robot %s: nil simulator", opts.Name)
		}
	}
	for _, p := range opts.Periodic {
		if p.Simulator == nil {
			return nil, fmt.Errorf("robot %s: nil periodic simulator", opts.Name)
		}
		if p.Interval <= 0 {
			return nil, fmt.Errorf("robot %s: periodic simulator %s needs a positive interval", opts.Name, p.Simulator.Name())
		}
	}
	r := &VirtualRobot{
		name:           opts.Name,
		fakeNetworking: opts.FakeNetworking,
		simulators:     opts.Simulators,
		periodic:       opts.Periodic,
		manualStep:     opts.ManualStep,
		endpoint:       opts.Endpoint,
		clock:          opts.Clock,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		state:          opts.Initial,
	}
	if r.manualStep <= 0 {
		r.manualStep = DefaultManualStep
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.metrics == nil {
		r.metrics = noopMetrics{}
	}
	if r.endpoint == nil {
		if r.fakeNetworking {
			r.endpoint = network.NewFakeNetwork().Endpoint(r.name)
		} else {
			r.endpoint = network.NewTransportEndpoint(r.name, nil)
		}
	}
	r.log = r.log.With("robot", r.name)
	return r, nil
}

// Name returns the robot's display name.
func (r *VirtualRobot) Name() string { return r.name }

// FakeNetworking reports whether the robot uses the in-process bus.
func (r *VirtualRobot) FakeNetworking() bool { return r.fakeNetworking }

// Connected reports whether the robot's endpoint is connected.
func (r *VirtualRobot) Connected() bool { return r.endpoint.Connected() }

// Running reports whether periodic simulators are active.
func (r *VirtualRobot) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run != nil
}

// Connect establishes the robot's network endpoint. Already connected robots
// return nil without reconnecting.
func (r *VirtualRobot) Connect(ctx context.Context) error {
	if r.endpoint.Connected() {
		return nil
	}
	err := r.endpoint.Connect(ctx)
	r.metrics.ObserveConnect(r.name, err)
	if err != nil {
		r.log.Warn("connect failed", "err", err)
		return &ConnectError{Robot: r.name, Err: err}
	}
	r.log.Info("connected", "fake", r.fakeNetworking)
	return nil
}

// Disconnect closes the robot's endpoint.
func (r *VirtualRobot) Disconnect() error {
	return r.endpoint.Close()
}

// SimulateAll runs one manual pass: every ordinary simulator, then every
// periodic simulator, in configuration order. A failing simulator does not
// stop the pass; failures are joined into the returned error.
func (r *VirtualRobot) SimulateAll(ctx context.Context, index, total int) error {
	if err := checkIndex(r.name, index, total); err != nil {
		return err
	}
	r.mu.Lock()
	r.seq++
	step := simulator.Step{
		Robot:   r.name,
		Index:   index,
		Total:   total,
		Seq:     r.seq,
		Time:    r.clock.Now(),
		Elapsed: r.manualStep,
	}
	var errs []error
	for _, s := range r.simulators {
		if err := r.advanceLocked(ctx, s, step); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range r.periodic {
		if err := r.advanceLocked(ctx, p.Simulator, step); err != nil {
			errs = append(errs, err)
		}
	}
	msg := r.messageLocked(step)
	r.mu.Unlock()

	r.publish(ctx, msg)
	return errors.Join(errs...)
}

// StartSimulators arms every periodic simulator, delaying the first tick by
// the robot's phase offset within the fleet. The returned StopFunc cancels the
// run and releases per-robot simulator resources.
func (r *VirtualRobot) StartSimulators(ctx context.Context, index, total int) (StopFunc, error) {
	if err := checkIndex(r.name, index, total); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil {
		return nil, ErrAlreadyStarted
	}

	// Ticks must outlive the caller's request scope; only StopFunc ends them.
	ctx = context.WithoutCancel(ctx)
	rn := &run{index: index, total: total}
	now := r.clock.Now()
	for _, p := range r.periodic {
		offset := PhaseOffset(p.Interval, index, total)
		l := &loop{periodic: p, due: now.Add(offset)}
		rn.loops = append(rn.loops, l)
		r.armLocked(ctx, rn, l, offset)
	}
	r.run = rn
	r.metrics.SetRunning(r.name, true)
	r.log.Debug("periodic simulators started", "count", len(r.periodic), "index", index, "total", total)

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() { err = r.stop(rn) })
		return err
	}, nil
}

// Snapshot returns a copy of the robot's current state.
func (r *VirtualRobot) Snapshot() RobotSnapshot {
	connected := r.endpoint.Connected()
	r.mu.Lock()
	defer r.mu.Unlock()
	return RobotSnapshot{
		Name:      r.name,
		Connected: connected,
		Running:   r.run != nil,
		Tick:      r.seq,
		Failures:  r.failures,
		State:     r.state,
		Time:      r.clock.Now(),
	}
}

func checkIndex(name string, index, total int) error {
	if total <= 0 || index < 0 || index >= total {
		return fmt.Errorf("robot %s: index %d out of range for fleet of %d", name, index, total)
	}
	return nil
}

// PhaseOffset spreads the first ticks of a fleet evenly over one interval.
func PhaseOffset(interval time.Duration, index, total int) time.Duration {
	if total <= 0 {
		return 0
	}
	return interval * time.Duration(index) / time.Duration(total)
}

func (r *VirtualRobot) armLocked(ctx context.Context, rn *run, l *loop, d time.Duration) {
	l.timer = r.clock.AfterFunc(d, func() { r.tick(ctx, rn, l) })
}

func (r *VirtualRobot) tick(ctx context.Context, rn *run, l *loop) {
	r.mu.Lock()
	if rn.stopped || r.run != rn {
		r.mu.Unlock()
		return
	}
	r.seq++
	now := r.clock.Now()
	step := simulator.Step{
		Robot:   r.name,
		Index:   rn.index,
		Total:   rn.total,
		Seq:     r.seq,
		Time:    now,
		Elapsed: l.periodic.Interval,
	}
	// errors are logged and counted inside advanceLocked
	_ = r.advanceLocked(ctx, l.periodic.Simulator, step)

	// Re-arm from the due time so lateness does not accumulate; missed ticks
	// are skipped rather than replayed.
	if !l.due.After(now) {
		missed := now.Sub(l.due)/l.periodic.Interval + 1
		l.due = l.due.Add(missed * l.periodic.Interval)
	}
	r.armLocked(ctx, rn, l, l.due.Sub(now))
	msg := r.messageLocked(step)
	r.mu.Unlock()

	r.publish(ctx, msg)
}

func (r *VirtualRobot) stop(rn *run) error {
	r.mu.Lock()
	rn.stopped = true
	for _, l := range rn.loops {
		if l.timer != nil {
			l.timer.Stop()
		}
	}
	if r.run == rn {
		r.run = nil
	}
	r.mu.Unlock()

	var errs []error
	for _, p := range r.periodic {
		rel, ok := p.Simulator.(simulator.Releaser)
		if !ok {
			continue
		}
		if err := safeRelease(rel, r.name); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", p.Simulator.Name(), err))
		}
	}
	r.metrics.SetRunning(r.name, false)
	err := errors.Join(errs...)
	r.metrics.ObserveStop(r.name, err)
	if err != nil {
		r.log.Warn("stop left resources unreleased", "err", err)
		return &StopError{Robot: r.name, Err: err}
	}
	r.log.Debug("periodic simulators stopped")
	return nil
}

func (r *VirtualRobot) advanceLocked(ctx context.Context, s simulator.Simulator, step simulator.Step) error {
	start := time.Now()
	next, err := safeAdvance(ctx, s, step, r.state)
	r.metrics.ObserveSimulation(r.name, s.Name(), time.Since(start), err)
	if err != nil {
		r.failures++
		r.log.Error("simulator failed", "simulator", s.Name(), "tick", step.Seq, "err", err)
		return &SimulatorError{Robot: r.name, Simulator: s.Name(), Tick: step.Seq, Err: err}
	}
	r.state = next
	return nil
}

func safeAdvance(ctx context.Context, s simulator.Simulator, step simulator.Step, state simulator.State) (next simulator.State, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Advance(ctx, step, state)
}

func safeRelease(rel simulator.Releaser, robot string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return rel.Release(robot)
}

type pending struct {
	seq   uint64
	at    time.Time
	state simulator.State
}

func (r *VirtualRobot) messageLocked(step simulator.Step) pending {
	return pending{seq: step.Seq, at: step.Time, state: r.state}
}

// publish sends the robot's state on its endpoint when connected. Publishing
// is best effort and never fails a simulation pass. Sends leave in Seq order;
// a state older than one already sent is dropped since each message carries
// the full state.
func (r *VirtualRobot) publish(ctx context.Context, p pending) {
	if !r.endpoint.Connected() {
		return
	}
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	if p.seq <= r.lastSent {
		return
	}
	payload, err := network.EncodePayload(p.state)
	if err != nil {
		r.log.Warn("encode state", "err", err)
		return
	}
	msg := network.Message{
		Type:      network.TypeRobotState,
		Seq:       p.seq,
		Payload:   payload,
		Timestamp: p.at,
	}
	if err := r.endpoint.Send(ctx, msg); err != nil {
		r.log.Warn("publish state", "tick", p.seq, "err", err)
		return
	}
	r.lastSent = p.seq
}
