// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that stamps records or waits between retries accepts a [Clock]
// instead of calling time.Now or time.After directly. Production code
// passes [Real]; tests pass [Fake] and move time forward explicitly
// with [FakeClock.Advance]:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go worker(c)        // blocks in c.After(time.Second)
//	c.WaitForTimers(1)  // wait until the worker is parked
//	c.Advance(time.Second)
package clock
