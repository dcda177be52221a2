// Package testutil holds deterministic stand-ins for the wall clock and the
// id generator.
package testutil

import "sync"

// Clock is a manual unix-millisecond clock. Each call to Now returns the
// current reading and advances it by the step, so successive operations get
// distinct, reproducible timestamps.
//
// Safe for concurrent use.
type Clock struct {
	mu    sync.Mutex
	start int64
	now   int64
	step  int64
}

// NewClock returns a clock reading start that advances by step per call.
// A step below 1 is treated as 1.
func NewClock(start, step int64) *Clock {
	if step < 1 {
		step = 1
	}
	return &Clock{start: start, now: start, step: step}
}

// Now returns the current reading and advances the clock. Its signature
// matches the clock hooks of the executor and reactor options.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now += c.step
	return t
}

// Current returns the next reading without advancing.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d milliseconds.
func (c *Clock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Reset returns the clock to its start reading.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
