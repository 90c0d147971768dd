package planets

import (
	"sync"
	"time"
)

// Clock is the wall-clock source used by everything that measures staleness
// or frame budgets.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to. Safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// ClockOrSystem never returns nil.
func ClockOrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}

// WorldClock is simulation time in seconds. It advances by the real frame
// delta scaled by Multiplier and drives orbits and rotations.
type WorldClock struct {
	Multiplier float64
	T          float64
	Dt         float64
}

func NewWorldClock(multiplier, t float64) *WorldClock {
	return &WorldClock{Multiplier: multiplier, T: t}
}

func (w *WorldClock) Tick(realDt time.Duration) {
	w.Dt = w.Multiplier * realDt.Seconds()
	w.T += w.Dt
}
