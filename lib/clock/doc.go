// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that stamp creation times, bound connect attempts, or
// send keepalive pings take a Clock instead of calling the time
// package. Production wiring passes Real(); tests pass Fake() and move
// time forward with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go dialer.Dial(ctx) // registers a timeout with fake.After
//	fake.WaitForTimers(1)
//	fake.Advance(5 * time.Second)
package clock
