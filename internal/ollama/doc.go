// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API
// and the corrector built on top of it.
//
// The client speaks the non-streaming generate endpoint and uses the tag
// listing endpoint as its liveness probe. The corrector has two paths with
// different failure policies: CorrectWord degrades to the original word on
// any error, while ProcessText returns the error to its caller.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API
//   - ClientError: typed error (not running, timeout, status, invalid response)
//   - Corrector: single-word and full-text correction with caching
//   - TaskKind: correct, rephrase or improve-prompt
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{DefaultModel: "tinyllama"})
//	corrector := ollama.NewCorrector(client, cache.New(100), ollama.WithLogger(logger))
//
//	fixed := corrector.CorrectWord(ctx, "helllo")
//	text, err := corrector.ProcessText(ctx, ollama.TaskRephrase, "pls send the file")
package ollama
