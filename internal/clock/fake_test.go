package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var fired []time.Duration
	c.AfterFunc(30*time.Millisecond, func() { fired = append(fired, c.Now().Sub(start)) })
	c.AfterFunc(10*time.Millisecond, func() { fired = append(fired, c.Now().Sub(start)) })
	c.AfterFunc(20*time.Millisecond, func() { fired = append(fired, c.Now().Sub(start)) })

	c.Advance(25 * time.Millisecond)
	if len(fired) != 2 {
		t.Fatalf("fired %d timers, want 2", len(fired))
	}
	if fired[0] != 10*time.Millisecond || fired[1] != 20*time.Millisecond {
		t.Fatalf("unexpected fire times: %v", fired)
	}
	if got := c.Now().Sub(start); got != 25*time.Millisecond {
		t.Fatalf("Now() offset = %v, want 25ms", got)
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", c.Pending())
	}
}

func TestFakeStopPreventsFire(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	called := false
	tm := c.AfterFunc(time.Second, func() { called = true })
	if !tm.Stop() {
		t.Fatalf("Stop() = false on pending timer")
	}
	if tm.Stop() {
		t.Fatalf("second Stop() = true")
	}
	c.Advance(2 * time.Second)
	if called {
		t.Fatalf("stopped timer fired")
	}
}

func TestFakeRearmFromCallback(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(5 * time.Second)
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}

func TestFakeTimeIsMonotonic(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewFake(start)
	c.AdvanceTo(start.Add(-time.Second))
	if !c.Now().Equal(start) {
		t.Fatalf("Now() moved backwards to %v", c.Now())
	}
}
