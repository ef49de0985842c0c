package fleet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"robotfleet-sim/internal/clock"
	"robotfleet-sim/internal/logging"
	"robotfleet-sim/internal/network"
	"robotfleet-sim/internal/simulator"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// recorder is a simulator that remembers every step it was given.
type recorder struct {
	id           string
	releaseErr   map[string]error
	releasePanic string

	mu       sync.Mutex
	steps    []simulator.Step
	released []string
}

func (r *recorder) Name() string { return r.id }

func (r *recorder) Advance(_ context.Context, step simulator.Step, s simulator.State) (simulator.State, error) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
	s.Heartbeat++
	return s, nil
}

func (r *recorder) Release(robot string) error {
	r.mu.Lock()
	r.released = append(r.released, robot)
	r.mu.Unlock()
	if robot == r.releasePanic {
		panic("release exploded")
	}
	return r.releaseErr[robot]
}

func (r *recorder) Steps() []simulator.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]simulator.Step(nil), r.steps...)
}

func (r *recorder) Released() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

// stubbornClock captures callbacks and refuses to cancel them, modelling a
// timer that already queued its callback when stop was requested.
type stubbornClock struct {
	mu  sync.Mutex
	fns []func()
}

type stubbornTimer struct{}

func (stubbornTimer) Stop() bool { return false }

func (c *stubbornClock) Now() time.Time { return epoch }

func (c *stubbornClock) AfterFunc(_ time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	c.fns = append(c.fns, f)
	c.mu.Unlock()
	return stubbornTimer{}
}

func (c *stubbornClock) take() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fns := c.fns
	c.fns = nil
	return fns
}

func newTestRobot(t *testing.T, opts RobotOptions) *VirtualRobot {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "Virtual Robot #1"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	r, err := NewVirtualRobot(opts)
	if err != nil {
		t.Fatalf("NewVirtualRobot: %v", err)
	}
	return r
}

func TestNewVirtualRobotValidates(t *testing.T) {
	cases := []struct {
		name string
		opts RobotOptions
	}{
		{"empty name", RobotOptions{}},
		{"nil simulator", RobotOptions{Name: "r", Simulators: []simulator.Simulator{nil}}},
		{"nil periodic", RobotOptions{Name: "r", Periodic: []simulator.Periodic{{Interval: time.Second}}}},
		{"zero interval", RobotOptions{Name: "r", Periodic: []simulator.Periodic{{Simulator: &recorder{id: "x"}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewVirtualRobot(tc.opts); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestRobotConnectFakeIsIdempotent(t *testing.T) {
	net := network.NewFakeNetwork()
	r := newTestRobot(t, RobotOptions{FakeNetworking: true, Endpoint: net.Endpoint("Virtual Robot #1")})
	for i := 0; i < 2; i++ {
		if err := r.Connect(context.Background()); err != nil {
			t.Fatalf("Connect #%d: %v", i+1, err)
		}
	}
	if !r.Connected() {
		t.Fatalf("robot not connected")
	}
	if got := net.Online(); len(got) != 1 || got[0] != "Virtual Robot #1" {
		t.Errorf("Online() = %v", got)
	}
}

func TestRobotConnectWithoutConnectorFails(t *testing.T) {
	r := newTestRobot(t, RobotOptions{})
	err := r.Connect(context.Background())
	var ce *ConnectError
	if !errors.As(err, &ce) || ce.Robot != "Virtual Robot #1" {
		t.Fatalf("Connect = %v, want ConnectError for robot", err)
	}
	if r.Connected() {
		t.Errorf("robot connected after failure")
	}
}

func TestRobotSimulateAllOrderAndElapsed(t *testing.T) {
	var order []string
	mk := func(id string) simulator.Simulator {
		return simulator.Func{ID: id, Fn: func(_ context.Context, step simulator.Step, s simulator.State) (simulator.State, error) {
			if step.Elapsed != 250*time.Millisecond {
				t.Errorf("%s elapsed = %v", id, step.Elapsed)
			}
			order = append(order, id)
			return s, nil
		}}
	}
	r := newTestRobot(t, RobotOptions{
		Simulators: []simulator.Simulator{mk("a"), mk("b")},
		Periodic:   []simulator.Periodic{{Simulator: mk("c"), Interval: time.Second}},
		ManualStep: 250 * time.Millisecond,
	})
	if err := r.SimulateAll(context.Background(), 0, 1); err != nil {
		t.Fatalf("SimulateAll: %v", err)
	}
	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
	if snap := r.Snapshot(); snap.Tick != 1 {
		t.Errorf("tick = %d, want 1", snap.Tick)
	}
}

func TestRobotFailingSimulatorOutputDiscarded(t *testing.T) {
	bad := simulator.Func{ID: "bad", Fn: func(_ context.Context, _ simulator.Step, s simulator.State) (simulator.State, error) {
		s.Battery = 0
		return s, errors.New("sensor fault")
	}}
	boom := simulator.Func{ID: "boom", Fn: func(context.Context, simulator.Step, simulator.State) (simulator.State, error) {
		panic("nil map")
	}}
	rec := &recorder{id: "rec"}
	r := newTestRobot(t, RobotOptions{
		Simulators: []simulator.Simulator{bad, boom, rec},
		Initial:    simulator.InitialState(0, 1),
	})

	err := r.SimulateAll(context.Background(), 0, 1)
	if err == nil {
		t.Fatalf("expected error")
	}
	var se *SimulatorError
	if !errors.As(err, &se) || se.Simulator != "bad" || se.Tick != 1 {
		t.Errorf("first SimulatorError = %+v", se)
	}
	if !strings.Contains(err.Error(), "panic: nil map") {
		t.Errorf("panic not reported: %v", err)
	}
	snap := r.Snapshot()
	if snap.State.Battery != 1 {
		t.Errorf("failed simulator output applied: battery = %v", snap.State.Battery)
	}
	if snap.State.Heartbeat != 1 || len(rec.Steps()) != 1 {
		t.Errorf("sibling simulator did not run")
	}
	if snap.Failures != 2 {
		t.Errorf("failures = %d, want 2", snap.Failures)
	}
}

func TestRobotStartTwiceFails(t *testing.T) {
	clk := clock.NewFake(epoch)
	r := newTestRobot(t, RobotOptions{
		Clock:    clk,
		Periodic: []simulator.Periodic{{Simulator: &recorder{id: "rec"}, Interval: time.Second}},
	})
	stop, err := r.StartSimulators(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("StartSimulators: %v", err)
	}
	if _, err := r.StartSimulators(context.Background(), 0, 1); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start = %v, want ErrAlreadyStarted", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.Running() {
		t.Errorf("robot still running after stop")
	}
	if _, err := r.StartSimulators(context.Background(), 0, 1); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
}

func TestRobotRejectsBadIndex(t *testing.T) {
	rec := &recorder{id: "rec"}
	r := newTestRobot(t, RobotOptions{Simulators: []simulator.Simulator{rec}})
	cases := []struct{ index, total int }{{3, 3}, {-1, 3}, {0, 0}}
	for _, c := range cases {
		if _, err := r.StartSimulators(context.Background(), c.index, c.total); err == nil {
			t.Errorf("StartSimulators(%d, %d): expected error", c.index, c.total)
		}
		if err := r.SimulateAll(context.Background(), c.index, c.total); err == nil {
			t.Errorf("SimulateAll(%d, %d): expected error", c.index, c.total)
		}
	}
	if n := len(rec.Steps()); n != 0 {
		t.Errorf("simulator ran %d times for invalid indexes", n)
	}
	if r.Snapshot().Tick != 0 {
		t.Errorf("tick advanced for invalid indexes")
	}
}

func TestRobotStopSuppressesQueuedCallbacks(t *testing.T) {
	clk := &stubbornClock{}
	rec := &recorder{id: "rec"}
	r := newTestRobot(t, RobotOptions{
		Clock:    clk,
		Periodic: []simulator.Periodic{{Simulator: rec, Interval: time.Second}},
	})
	stop, err := r.StartSimulators(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("StartSimulators: %v", err)
	}
	for _, f := range clk.take() {
		f()
	}
	if len(rec.Steps()) != 1 {
		t.Fatalf("expected one tick before stop, got %d", len(rec.Steps()))
	}

	if err := stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	queued := clk.take()
	if len(queued) == 0 {
		t.Fatalf("expected the re-armed callback to be queued")
	}
	for _, f := range queued {
		f()
	}
	if n := len(rec.Steps()); n != 1 {
		t.Errorf("callback mutated state after stop: %d ticks", n)
	}
	if snap := r.Snapshot(); snap.Tick != 1 || snap.State.Heartbeat != 1 {
		t.Errorf("state changed after stop: %+v", snap)
	}
}

func TestRobotStopBeforeFirstTick(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &recorder{id: "rec"}
	r := newTestRobot(t, RobotOptions{
		Clock:    clk,
		Periodic: []simulator.Periodic{{Simulator: rec, Interval: time.Second}},
	})
	stop, err := r.StartSimulators(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("StartSimulators: %v", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if clk.Pending() != 0 {
		t.Errorf("pending timers after stop: %d", clk.Pending())
	}
	clk.Advance(10 * time.Second)
	if len(rec.Steps()) != 0 {
		t.Errorf("simulator ran after stop")
	}
	if got := rec.Released(); len(got) != 1 || got[0] != "Virtual Robot #1" {
		t.Errorf("released = %v", got)
	}
}

func TestRobotPeriodicRearmsWithoutDrift(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &recorder{id: "rec"}
	r := newTestRobot(t, RobotOptions{
		Clock:    clk,
		Periodic: []simulator.Periodic{{Simulator: rec, Interval: 3 * time.Second}},
	})
	stop, err := r.StartSimulators(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("StartSimulators: %v", err)
	}
	defer stop()

	clk.Advance(10 * time.Second)
	steps := rec.Steps()
	want := []time.Duration{time.Second, 4 * time.Second, 7 * time.Second, 10 * time.Second}
	if len(steps) != len(want) {
		t.Fatalf("got %d ticks, want %d", len(steps), len(want))
	}
	for i, s := range steps {
		if at := s.Time.Sub(epoch); at != want[i] {
			t.Errorf("tick %d at %v, want %v", i, at, want[i])
		}
		if s.Elapsed != 3*time.Second {
			t.Errorf("tick %d elapsed %v", i, s.Elapsed)
		}
		if s.Seq != uint64(i+1) {
			t.Errorf("tick %d seq %d", i, s.Seq)
		}
	}
}

// jumpClock lets a test move time by arbitrary amounts between callbacks.
type jumpClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
	fns    []func()
}

func (c *jumpClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *jumpClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.fns = append(c.fns, f)
	return stubbornTimer{}
}

// fire sets the time to at and runs the most recently armed callback.
func (c *jumpClock) fire(at time.Time) time.Duration {
	c.mu.Lock()
	c.now = at
	f := c.fns[len(c.fns)-1]
	c.mu.Unlock()
	f()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delays[len(c.delays)-1]
}

func TestRobotSkipsMissedTicks(t *testing.T) {
	cases := []struct {
		name      string
		interval  time.Duration
		late      time.Duration
		wantDelay time.Duration
	}{
		{"on time", time.Second, 0, time.Second},
		{"between ticks", time.Second, 10*time.Second + 500*time.Millisecond, 500*time.Millisecond},
		{"on a tick boundary", time.Second, 7*time.Second, time.Second},
		{"tiny interval long stall", time.Nanosecond, time.Hour, time.Nanosecond},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			clk := &jumpClock{now: epoch}
			rec := &recorder{id: "rec"}
			r := newTestRobot(t, RobotOptions{
				Clock:    clk,
				Periodic: []simulator.Periodic{{Simulator: rec, Interval: c.interval}},
			})
			stop, err := r.StartSimulators(context.Background(), 0, 1)
			if err != nil {
				t.Fatalf("StartSimulators: %v", err)
			}
			defer stop()

			if got := clk.fire(epoch.Add(c.late)); got != c.wantDelay {
				t.Errorf("next tick in %v, want %v", got, c.wantDelay)
			}
			if n := len(rec.Steps()); n != 1 {
				t.Errorf("late tick ran %d times, want 1", n)
			}
		})
	}
}

func TestRobotPublishDropsStaleState(t *testing.T) {
	net := network.NewFakeNetwork()
	msgs, cancel := net.Subscribe(8)
	defer cancel()
	r := newTestRobot(t, RobotOptions{
		FakeNetworking: true,
		Endpoint:       net.Endpoint("Virtual Robot #1"),
	})
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-msgs // hello

	for _, seq := range []uint64{5, 3, 5, 6} {
		r.publish(context.Background(), pending{seq: seq, at: epoch})
	}
	var got []uint64
	for len(msgs) > 0 {
		got = append(got, (<-msgs).Seq)
	}
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Errorf("published seqs = %v, want [5 6]", got)
	}
}

func TestRobotPublishesStateWhenConnected(t *testing.T) {
	net := network.NewFakeNetwork()
	msgs, cancel := net.Subscribe(8)
	defer cancel()
	r := newTestRobot(t, RobotOptions{
		FakeNetworking: true,
		Endpoint:       net.Endpoint("Virtual Robot #1"),
		Simulators:     []simulator.Simulator{simulator.Overview{ID: "overview"}},
	})

	// not connected yet: nothing published
	if err := r.SimulateAll(context.Background(), 0, 1); err != nil {
		t.Fatalf("SimulateAll: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("published while disconnected")
	}

	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-msgs // hello
	if err := r.SimulateAll(context.Background(), 0, 1); err != nil {
		t.Fatalf("SimulateAll: %v", err)
	}
	m := <-msgs
	if m.Type != network.TypeRobotState || m.Seq != 2 || m.Robot != "Virtual Robot #1" {
		t.Fatalf("unexpected message %+v", m)
	}
	var st simulator.State
	if err := network.DecodePayload(m.Payload, &st); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if st != r.Snapshot().State {
		t.Errorf("published %+v, snapshot %+v", st, r.Snapshot().State)
	}
}

func TestPhaseOffset(t *testing.T) {
	cases := []struct {
		interval     time.Duration
		index, total int
		want         time.Duration
	}{
		{time.Second, 0, 4, 0},
		{time.Second, 1, 4, 250 * time.Millisecond},
		{time.Second, 3, 4, 750 * time.Millisecond},
		{10 * time.Second, 2, 3, 6666666666},
		{time.Second, 0, 0, 0},
	}
	for _, tc := range cases {
		if got := PhaseOffset(tc.interval, tc.index, tc.total); got != tc.want {
			t.Errorf("PhaseOffset(%v, %d, %d) = %v, want %v", tc.interval, tc.index, tc.total, got, tc.want)
		}
	}
}
