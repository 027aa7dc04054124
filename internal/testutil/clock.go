package testutil

import (
	"sync"
	"time"
)

// FakeWallClock is a manually advanced wall clock for watchdog tests.
//
// Thread-safety: All methods are safe for concurrent use.
type FakeWallClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeWallClock creates a clock reading start.
func NewFakeWallClock(start time.Time) *FakeWallClock {
	return &FakeWallClock{now: start}
}

// Now returns the current fake time. Pass it where a func() time.Time is
// expected.
func (c *FakeWallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeWallClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
