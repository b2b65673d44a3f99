// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bus provides the message transport used by the relay.
//
// The in-memory bus is the default and keeps every agent in one process.
// The NATS bus lets a page agent run elsewhere, for example inside a
// browser host process, while the background agent stays in the daemon.
//
// # Key Types
//
//   - MessageBus: publish, subscribe and request/reply
//   - MemoryBus: in-process implementation
//   - NATSBus: implementation over a NATS server
package bus
