package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced wall clock for tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current frozen time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FixedIDs returns a generator yielding ids in order, then panics.
// Panicking catches tests that create more ids than they expect.
func FixedIDs(ids ...string) func() string {
	var mu sync.Mutex
	idx := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(ids) {
			panic("FixedIDs: all ids exhausted")
		}
		id := ids[idx]
		idx++
		return id
	}
}
