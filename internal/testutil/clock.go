// Package testutil holds deterministic stand-ins for the time and token
// sources the cache consumes, so scenario runs are reproducible.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall time a DeterministicClock reports before its first tick.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a logical clock paired with a wall clock that only
// moves when the logical clock does. Each tick advances wall time by one
// second.
//
// Thread-safety: All methods are safe for concurrent use.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock at seq 0. The first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new seq.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the seq without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now returns Epoch plus one second per tick. It has the signature of
// time.Now so it can be injected wherever a wall clock is taken.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Epoch.Add(time.Duration(c.seq) * time.Second)
}

// Reset returns the clock to seq 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
