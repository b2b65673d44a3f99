// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeranaias/llmspell/internal/cache"
	"github.com/jeranaias/llmspell/internal/heuristic"
)

const namespace = "llmspell"

// =============================================================================
// METRICS
// =============================================================================

// Metrics records what the spell checker does. It satisfies the recorder
// ports of the corrector, the trigger pipeline and the suggestion manager.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups *prometheus.CounterVec
	modelCalls   *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec
	checks       *prometheus.CounterVec
	gate         *prometheus.CounterVec
	popups       *prometheus.CounterVec
	ollamaUp     prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// New creates Metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Correction cache lookups by result.",
		}, []string{"result"}),
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Generation requests sent to the model service.",
		}, []string{"task", "outcome"}),
		modelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Latency of generation requests.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		checks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Debounced word checks by outcome.",
		}, []string{"outcome"}),
		gate: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_verdicts_total",
			Help:      "Heuristic gate decisions by verdict.",
		}, []string{"verdict"}),
		popups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_total",
			Help:      "Suggestion popup events.",
		}, []string{"event"}),
		ollamaUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ollama_up",
			Help:      "1 when the last status probe reached the model service.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackCache exports the size of c as a gauge.
func (m *Metrics) TrackCache(c *cache.Cache) {
	if m == nil || c == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Entries in the correction cache.",
	}, func() float64 { return float64(c.Len()) })
}

// CacheLookup records a correction cache lookup.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ModelCall records a generation request.
func (m *Metrics) ModelCall(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.modelCalls.WithLabelValues(task, outcome).Inc()
	m.modelLatency.WithLabelValues(task).Observe(d.Seconds())
}

// CheckFinished records the outcome of a debounced check.
func (m *Metrics) CheckFinished(outcome string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(outcome).Inc()
}

// GateVerdict records a heuristic decision. It fits heuristic.Gate.OnVerdict.
func (m *Metrics) GateVerdict(v heuristic.Verdict) {
	if m == nil {
		return
	}
	m.gate.WithLabelValues(v.String()).Inc()
}

// PopupShown records a suggestion being displayed.
func (m *Metrics) PopupShown() {
	if m == nil {
		return
	}
	m.popups.WithLabelValues("shown").Inc()
}

// PopupClosed records how a suggestion went away.
func (m *Metrics) PopupClosed(outcome string) {
	if m == nil {
		return
	}
	m.popups.WithLabelValues(outcome).Inc()
}

// SetOllamaUp records the result of a status probe.
func (m *Metrics) SetOllamaUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.ollamaUp.Set(1)
	} else {
		m.ollamaUp.Set(0)
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}
