// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/llmspell/internal/cache"
	"github.com/jeranaias/llmspell/internal/heuristic"
	"github.com/jeranaias/llmspell/internal/ollama"
	"github.com/jeranaias/llmspell/internal/suggest"
	"github.com/jeranaias/llmspell/internal/trigger"
)

// The recorder ports are satisfied.
var (
	_ ollama.Recorder  = (*Metrics)(nil)
	_ suggest.Recorder = (*Metrics)(nil)
	_ trigger.Recorder = (*Metrics)(nil)
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.ModelCall("word", 20*time.Millisecond, nil)
	m.ModelCall("correct", time.Second, errors.New("boom"))
	m.CheckFinished(trigger.OutcomeSuggested)
	m.GateVerdict(heuristic.VerdictTooShort)
	m.PopupShown()
	m.PopupClosed("applied")
	m.ObserveHTTP("/v1/process", 200, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelCalls.WithLabelValues("word", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelCalls.WithLabelValues("correct", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checks.WithLabelValues("suggested")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gate.WithLabelValues("too_short")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.popups.WithLabelValues("shown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.popups.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/v1/process", "200")))
}

func TestMetrics_OllamaUp(t *testing.T) {
	m := New()
	m.SetOllamaUp(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ollamaUp))
	m.SetOllamaUp(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ollamaUp))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup(true)
		m.ModelCall("word", 0, nil)
		m.CheckFinished("gated")
		m.GateVerdict(heuristic.VerdictAccepted)
		m.PopupShown()
		m.PopupClosed("ignored")
		m.SetOllamaUp(true)
		m.ObserveHTTP("/", 200, 0)
		m.TrackCache(cache.New(1))
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	c := cache.New(10)
	c.Store("helllo", "hello")
	m.TrackCache(c)
	m.CacheLookup(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `llmspell_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, string(body), "llmspell_cache_entries 1")
	assert.Contains(t, string(body), "go_goroutines")
}
