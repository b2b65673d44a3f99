// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry exports llmspell's counters to Prometheus.
//
// Metrics plugs into the recorder ports of the other packages, so the
// pipeline itself has no Prometheus dependency:
//
//	m := telemetry.New()
//	corrector := ollama.NewCorrector(client, c, ollama.WithRecorder(m))
//	gate.OnVerdict = m.GateVerdict
//	router.Handle("/metrics", m.Handler())
//
// All metric names carry the llmspell_ prefix. Everything stays on the
// local registry; nothing is pushed anywhere.
package telemetry
