package fleet

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned when periodic simulators are started on a
// fleet or robot whose previous run has not been stopped.
var ErrAlreadyStarted = errors.New("simulators already started")

// ConnectError reports a failed transport connect for one robot.
type ConnectError struct {
	Robot string
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Robot, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SimulatorError reports a failed Advance of one simulator on one robot.
type SimulatorError struct {
	Robot     string
	Simulator string
	Tick      uint64
	Err       error
}

func (e *SimulatorError) Error() string {
	return fmt.Sprintf("simulator %s on %s (tick %d): %v", e.Simulator, e.Robot, e.Tick, e.Err)
}

func (e *SimulatorError) Unwrap() error { return e.Err }

// StopError reports resources a robot failed to release when stopping.
type StopError struct {
	Robot string
	Err   error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("stop %s: %v", e.Robot, e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }
