// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for tests. Safe for concurrent
// use.
type FakeClock struct {
	mu      sync.Mutex
	changed *sync.Cond
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that fires when the fake time reaches
// now+d. Non-positive durations fire immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.waiters = append(c.waiters, fakeWaiter{deadline: c.now.Add(d), channel: channel})
	c.changed.Broadcast()
	return channel
}

// Advance moves the fake time forward by d and fires every waiter
// whose deadline has been reached, in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due, remaining []fakeWaiter
	for _, waiter := range c.waiters {
		if waiter.deadline.After(now) {
			remaining = append(remaining, waiter)
		} else {
			due = append(due, waiter)
		}
	}
	c.waiters = remaining
	c.changed.Broadcast()
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, waiter := range due {
		waiter.channel <- now
	}
}

// WaitForTimers blocks until at least n waiters are pending. Use it to
// synchronize with a goroutine before calling Advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of waiters that have not fired.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
