// Package manual provides a settable clock for tests and replays.
package manual

import (
	"sync"
	"time"
)

// Clock returns a fixed time until it is moved with Set or Advance.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

// New creates a Clock starting at now.
func New(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

// Now returns the current manual time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
