// Pluggable simulated behaviour units bound to virtual robots
package simulator

import (
	"context"
	"time"
)

// Simulator advances one aspect of a robot's simulated state. Implementations
// must treat the incoming State as a value and return the successor; they are
// shared across every robot of a fleet and must not keep per-robot state.
type Simulator interface {
	// Name identifies the simulator in logs and errors.
	Name() string
	Advance(ctx context.Context, step Step, state State) (State, error)
}

// Periodic binds a Simulator to a fixed wall-clock interval.
type Periodic struct {
	Simulator Simulator
	Interval  time.Duration
}

// Releaser is implemented by simulators that hold per-robot resources which
// must be released when a robot's periodic loops stop.
type Releaser interface {
	Release(robot string) error
}

// Step describes one invocation of a simulator.
type Step struct {
	Robot string
	// Index and Total locate the robot within its fleet.
	Index int
	Total int
	// Seq counts passes on this robot, starting at 1.
	Seq     uint64
	Time    time.Time
	Elapsed time.Duration
}

// Func adapts a function to the Simulator interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, step Step, state State) (State, error)
}

// Name returns the function's identity.
func (f Func) Name() string { return f.ID }

// Advance calls the wrapped function.
func (f Func) Advance(ctx context.Context, step Step, state State) (State, error) {
	return f.Fn(ctx, step, state)
}
