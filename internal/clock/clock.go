// Clock abstraction used by periodic simulation loops
package clock

import "time"

// Clock gives access to the current time and one-shot timers. Robots depend on
// it rather than the time package so tests can fast-forward.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (or inline for fakes) once d has
	// elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from firing. It returns false if the call has
	// already fired or been stopped.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
