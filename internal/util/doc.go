// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across llmspell.
//
// # Key Functions
//
//   - AtomicWriteFile: Crash-safe file writing with fsync, used for config.toml
//   - TruncateRunes: UTF-8 safe truncation for log previews and popups
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	preview := util.TruncateRunes(text, 40)
package util
