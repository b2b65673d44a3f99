// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"go.uber.org/zap"

	"github.com/jeranaias/llmspell/internal/cache"
	"github.com/jeranaias/llmspell/internal/config"
	"github.com/jeranaias/llmspell/internal/heuristic"
	"github.com/jeranaias/llmspell/internal/ollama"
	"github.com/jeranaias/llmspell/internal/telemetry"
)

// stack is the model side shared by the daemon and the one-shot commands.
type stack struct {
	metrics   *telemetry.Metrics
	cache     *cache.Cache
	client    *ollama.Client
	corrector *ollama.Corrector
	gate      *heuristic.Gate
}

func newStack(cfg *config.Config, logger *zap.Logger) *stack {
	metrics := telemetry.New()

	c := cache.New(cfg.Cache.MaxEntries)
	metrics.TrackCache(c)

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Ollama.URL,
		Timeout:      cfg.Ollama.Timeout(),
		DefaultModel: cfg.Settings.Model,
	})

	corrector := ollama.NewCorrector(client, c,
		ollama.WithLogger(logger.Named("ollama")),
		ollama.WithRecorder(metrics),
	)

	gate := heuristic.NewGate(cfg.Heuristic.MinLength, cfg.Heuristic.MaxLength)
	gate.OnVerdict = metrics.GateVerdict

	return &stack{
		metrics:   metrics,
		cache:     c,
		client:    client,
		corrector: corrector,
		gate:      gate,
	}
}
