// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for llmspell.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - Settings: The user toggles (enabled, model, debounce time)
//   - SettingsStore: Load/Save of Settings in the config file
//   - Watcher: fsnotify hot reload of the config file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (LLMSPELL_*)
//   - ~/.llmspell/config.toml
//   - ~/.llmspell/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	delay := cfg.Settings.Debounce()
//
// Persist a toggle:
//
//	store, _ := config.DefaultSettingsStore()
//	st, _ := store.Load()
//	st.Enabled = false
//	err = store.Save(st)
package config
