// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package debounce collapses bursts of events into one call per key.
//
// Every Trigger for a key cancels that key's pending timer and starts a new
// one, so only the most recent callback runs once the quiet interval passes
// with no further events. Keys are independent: each observed field gets its
// own timer.
//
// # Key Types
//
//   - Debouncer: keyed timers over an injectable clock
//
// # Usage
//
//	d := debounce.New(time.Second)
//	defer d.Stop()
//	d.Trigger(fieldID, func() { check(fieldID) })
//
// Tests pass clock.NewMock() via WithClock and advance it explicitly.
package debounce
