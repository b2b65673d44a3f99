// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the llmspell command line.
//
// Commands are built with cobra. The root command loads configuration
// (file, then LLMSPELL_* environment overrides) and builds the zap logger
// before any subcommand runs.
//
// # Commands
//
//   - serve: Run the daemon (relay, HTTP API, optional Chrome page host)
//   - check <word>: Gate and correct a single word
//   - process --task <kind> [text]: Run a whole-text task
//   - status [--watch]: Model service and daemon status
//   - config show|get|set|path|keys: Configuration management
//   - demo <text>: Type into a simulated field and show suggestions
//   - try: Interactive terminal field checked as you type
//   - page get|set|replace: Act on the focused field of a Chrome tab
//   - version: Build information
//
// Every command supports --json, which prints a JSONResponse envelope.
//
// # Usage
//
//	os.Exit(cli.Execute())
package cli
