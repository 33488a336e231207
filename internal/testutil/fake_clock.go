// fake_clock.go - Deterministic clock for runner tests
package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeClock advances only when slept on. Sleep returns immediately after
// moving time forward, so a simulated run completes without waiting.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int

	// OnSleep, if set, runs after each advance with the total sleep count.
	// It must not call back into the clock.
	OnSleep func(n int)
}

// NewFakeClock starts the clock at a fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	n := c.sleeps
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// Advance moves time forward without counting as a sleep.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns how many times Sleep was called.
func (c *FakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}
