package engine

import "sync/atomic"

// Clock counts completed ticks.
//
// Safe for concurrent reads; only the goroutine driving the session
// advances it.
type Clock struct {
	tick atomic.Int64
}

// NewClock creates a clock at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes at start, e.g. after loading a
// snapshot.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.tick.Store(start)
	return c
}

// Next advances the clock and returns the new tick number.
func (c *Clock) Next() int64 {
	return c.tick.Add(1)
}

// Current returns the number of completed ticks.
func (c *Clock) Current() int64 {
	return c.tick.Load()
}
