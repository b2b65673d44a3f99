// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline keeps llmspell local.
//
// Everything the user types is sent to the model service, so by default the
// service must be on the loopback interface and the HTTP surface only binds
// loopback. Both checks can be relaxed explicitly in the config.
//
// # Usage
//
//	if err := offline.ValidateModelURL(cfg.Ollama.URL, cfg.Ollama.AllowRemote); err != nil {
//	    return err
//	}
package offline
