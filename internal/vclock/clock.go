// Package vclock implements the simulated operating-system clock.
//
// The clock is a (seconds, nanoseconds) pair advanced only by the master.
// Workers read it through Snapshot, which never observes a torn value because
// both halves live in a single 64-bit word.
package vclock

import (
	"fmt"
	"sync/atomic"
)

// NanosPerSecond is the carry threshold for the nanosecond field.
const NanosPerSecond = 1_000_000_000

// DefaultTick is the amount the master advances the clock per loop iteration.
const DefaultTick = 1000

// Time is an immutable clock reading.
//
// Invariant: Nanoseconds < NanosPerSecond.
type Time struct {
	Seconds     uint32 `json:"seconds"`
	Nanoseconds uint32 `json:"nanoseconds"`
}

// FromNanos converts a total nanosecond count into a normalized Time.
func FromNanos(n uint64) Time {
	return Time{
		Seconds:     uint32(n / NanosPerSecond),
		Nanoseconds: uint32(n % NanosPerSecond),
	}
}

// Nanos returns the reading as a total nanosecond count.
func (t Time) Nanos() uint64 {
	return uint64(t.Seconds)*NanosPerSecond + uint64(t.Nanoseconds)
}

// Sub returns t-u in nanoseconds, or 0 if u is later than t.
func (t Time) Sub(u Time) uint64 {
	a, b := t.Nanos(), u.Nanos()
	if b > a {
		return 0
	}
	return a - b
}

// Before reports whether t is strictly earlier than u.
func (t Time) Before(u Time) bool {
	return t.Nanos() < u.Nanos()
}

// String formats the reading as "seconds:nanoseconds", the format used in the
// simulation log.
func (t Time) String() string {
	return fmt.Sprintf("%d:%d", t.Seconds, t.Nanoseconds)
}

func pack(t Time) uint64   { return uint64(t.Seconds)<<32 | uint64(t.Nanoseconds) }
func unpack(w uint64) Time { return Time{Seconds: uint32(w >> 32), Nanoseconds: uint32(w)} }

// Clock is the shared virtual clock.
//
// Thread-safety: Snapshot is safe from any goroutine. Advance is intended for
// a single writer (the master) but remains linearizable if misused, since it
// is a compare-and-swap loop.
type Clock struct {
	word atomic.Uint64
}

// New creates a clock reading 0:0.
func New() *Clock {
	return &Clock{}
}

// NewAt creates a clock starting at t. t is normalized first.
func NewAt(t Time) *Clock {
	c := &Clock{}
	c.word.Store(pack(FromNanos(t.Nanos())))
	return c
}

// Advance adds delta nanoseconds, carrying whole seconds out of the
// nanosecond field, and returns the new reading.
func (c *Clock) Advance(delta uint64) Time {
	for {
		old := c.word.Load()
		next := FromNanos(unpack(old).Nanos() + delta)
		if c.word.CompareAndSwap(old, pack(next)) {
			return next
		}
	}
}

// Snapshot returns the current reading.
func (c *Clock) Snapshot() Time {
	return unpack(c.word.Load())
}

// Reset sets the clock back to 0:0. Only resource teardown calls this.
func (c *Clock) Reset() {
	c.word.Store(0)
}
