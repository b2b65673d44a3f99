// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides the in-memory correction cache.
//
// The cache maps an exact candidate string (case-sensitive) to the
// correction the model returned for it. It is bounded and evicts in strict
// insertion order: once the bound is exceeded the oldest-inserted entry is
// dropped. Re-storing an existing key updates its value but does not move it.
// There is no time-based expiry and nothing is persisted.
//
// # Key Types
//
//   - Cache: the bounded FIFO map, safe for concurrent use
//   - Stats: hit, miss and eviction counters
//
// # Usage
//
//	c := cache.New(cache.DefaultMaxEntries)
//	if fixed, ok := c.Lookup("helllo"); ok {
//	    return fixed
//	}
//	c.Store("helllo", "hello")
package cache
