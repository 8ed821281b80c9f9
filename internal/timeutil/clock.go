// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts the time operations the engine needs so the cycle budget
// and track ageing logic can be driven deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// Sleep pauses for the specified duration.
	Sleep(d time.Duration)

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock using the time package.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)                  { time.Sleep(d) }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FakeClock implements Clock with a manually advanced current time.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock pinned to start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep advances the fake time without blocking.
func (c *FakeClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// After advances the clock and delivers immediately; callers that select on
// the channel observe the timeout without wall-clock delay.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// Advance moves the fake time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
