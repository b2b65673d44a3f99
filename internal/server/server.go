// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jeranaias/llmspell/internal/bus"
	"github.com/jeranaias/llmspell/internal/cache"
	"github.com/jeranaias/llmspell/internal/config"
	"github.com/jeranaias/llmspell/internal/relay"
	"github.com/jeranaias/llmspell/internal/status"
	"github.com/jeranaias/llmspell/internal/telemetry"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize bounds request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 5 * time.Second

	// healthProbeTimeout bounds the live probe /health runs when the
	// monitor has not checked yet.
	healthProbeTimeout = 2 * time.Second
)

// Version is reported by /health. It is set by the CLI at startup.
var Version = "dev"

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats counts the requests the relay endpoints served.
type ServerStats struct {
	StartTime time.Time `json:"-"`

	TotalRequests   int64 `json:"total_requests"`
	ProcessRequests int64 `json:"process_requests"`
	WordRequests    int64 `json:"word_requests"`
	PageRequests    int64 `json:"page_requests"`
	RelayFailures   int64 `json:"relay_failures"`
}

// NewServerStats creates a new ServerStats instance.
func NewServerStats() *ServerStats {
	return &ServerStats{StartTime: time.Now()}
}

type requestKind int

const (
	kindOther requestKind = iota
	kindProcess
	kindWord
	kindPage
)

// record counts one relay request.
func (s *ServerStats) record(kind requestKind, failed bool) {
	atomic.AddInt64(&s.TotalRequests, 1)
	switch kind {
	case kindProcess:
		atomic.AddInt64(&s.ProcessRequests, 1)
	case kindWord:
		atomic.AddInt64(&s.WordRequests, 1)
	case kindPage:
		atomic.AddInt64(&s.PageRequests, 1)
	}
	if failed {
		atomic.AddInt64(&s.RelayFailures, 1)
	}
}

// GetStats returns a consistent copy of the counters.
func (s *ServerStats) GetStats() ServerStats {
	return ServerStats{
		StartTime:       s.StartTime,
		TotalRequests:   atomic.LoadInt64(&s.TotalRequests),
		ProcessRequests: atomic.LoadInt64(&s.ProcessRequests),
		WordRequests:    atomic.LoadInt64(&s.WordRequests),
		PageRequests:    atomic.LoadInt64(&s.PageRequests),
		RelayFailures:   atomic.LoadInt64(&s.RelayFailures),
	}
}

// Uptime returns how long the server has been running.
func (s *ServerStats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the local HTTP surface of the daemon. Every model or page
// operation goes through the relay, so the HTTP handlers are thin
// adapters over relay.Client.
type Server struct {
	cfg    config.ServerConfig
	relay  *relay.Client
	stats  *ServerStats
	cors   *CORSConfig
	logger *zap.Logger

	bridge   *PageBridge
	limiter  *RateLimiter
	cache    *cache.Cache
	settings *config.SettingsStore
	monitor  *status.Monitor
	metrics  *telemetry.Metrics

	onSettings func(config.Settings)

	server *http.Server
	mu     sync.RWMutex
}

// NewServer creates a server that answers through client.
func NewServer(cfg config.ServerConfig, client *relay.Client) *Server {
	s := &Server{
		cfg:    cfg,
		relay:  client,
		stats:  NewServerStats(),
		cors:   DefaultCORSConfig(cfg.AllowedOrigins),
		logger: zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(l *zap.Logger) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l != nil {
		s.logger = l
	}
	return s
}

// WithBus enables the page WebSocket bridge over b.
func (s *Server) WithBus(b bus.MessageBus) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridge = NewPageBridge(b, s.cors, relay.DefaultTimeout, s.logger)
	return s
}

// WithCache exposes c on the cache endpoints.
func (s *Server) WithCache(c *cache.Cache) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = c
	return s
}

// WithSettings exposes store on /v1/settings. onSave, when set, runs
// after every successful save so the live pipeline picks up the change
// without waiting for the file watcher.
func (s *Server) WithSettings(store *config.SettingsStore, onSave func(config.Settings)) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = store
	s.onSettings = onSave
	return s
}

// WithMonitor reports m's snapshot on /health.
func (s *Server) WithMonitor(m *status.Monitor) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor = m
	return s
}

// WithMetrics records requests in m and serves it on /metrics.
func (s *Server) WithMetrics(m *telemetry.Metrics) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr()
}

// Stats returns the request counters.
func (s *Server) Stats() ServerStats {
	return s.stats.GetStats()
}

// ============================================================================
// ROUTES
// ============================================================================

// Handler builds the router with the middleware chain.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	logger, metrics, limiter, bridge := s.logger, s.metrics, s.limiter, s.bridge
	s.mu.RUnlock()

	r := chi.NewRouter()
	r.Use(RecoveryMiddleware(logger))
	r.Use(SecurityHeadersMiddleware())
	r.Use(CORSMiddleware(s.cors))
	r.Use(LoggingMiddleware(logger, metrics))
	if limiter != nil {
		r.Use(RateLimitMiddleware(limiter, logger))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/process", s.handleProcess)
		r.Post("/correct-word", s.handleCorrectWord)
		r.Post("/correct-selection", s.handleCorrectSelection)

		r.Get("/page/text", s.handleGetText)
		r.Put("/page/text", s.handleSetText)
		r.Post("/page/replace-selection", s.handleReplaceSelection)
		if bridge != nil {
			r.Get("/page/ws", bridge.ServeHTTP)
		}

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	r.Get("/cache/stats", s.handleCacheStats)
	r.Post("/cache/clear", s.handleCacheClear)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	return r
}

// ============================================================================
// RELAY HANDLERS
// ============================================================================

// ProcessRequest is the body of POST /v1/process.
type ProcessRequest struct {
	Task string `json:"task"`
	Text string `json:"text"`
}

// WordRequest is the body of POST /v1/correct-word.
type WordRequest struct {
	Word string `json:"word"`
}

// TextRequest is the body of the page write endpoints.
type TextRequest struct {
	Text string `json:"text"`
}

// handleStatus handles GET /v1/status. It always answers 200; an
// unreachable model service is the offline status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.CheckStatus(r.Context()))
}

// handleProcess handles POST /v1/process. Task failures are the
// success=false variant with status 200; only transport failures change
// the status code.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.relay.ProcessText(r.Context(), req.Task, req.Text)
	s.stats.record(kindProcess, err != nil || !reply.Success)
	if err != nil {
		s.relayError(w, "process", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleCorrectWord handles POST /v1/correct-word.
func (s *Server) handleCorrectWord(w http.ResponseWriter, r *http.Request) {
	var req WordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.relay.CorrectWord(r.Context(), req.Word)
	s.stats.record(kindWord, err != nil)
	if err != nil {
		s.relayError(w, "correct-word", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleCorrectSelection handles POST /v1/correct-selection, the context
// menu entry.
func (s *Server) handleCorrectSelection(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.relay.CorrectSelection(r.Context(), req.Text)
	s.stats.record(kindProcess, err != nil || !reply.Success)
	if err != nil {
		s.relayError(w, "correct-selection", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleGetText handles GET /v1/page/text. A page with nothing focused, or
// no page agent at all, answers {"text": null}.
func (s *Server) handleGetText(w http.ResponseWriter, r *http.Request) {
	reply, err := s.relay.GetText(r.Context())
	s.stats.record(kindPage, err != nil)
	if err != nil {
		s.relayError(w, "page/text", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleSetText handles PUT /v1/page/text.
func (s *Server) handleSetText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.relay.SetText(r.Context(), req.Text)
	s.stats.record(kindPage, err != nil || !reply.Success)
	if err != nil {
		s.relayError(w, "page/text", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleReplaceSelection handles POST /v1/page/replace-selection.
func (s *Server) handleReplaceSelection(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.relay.ReplaceSelection(r.Context(), req.Text)
	s.stats.record(kindPage, err != nil || !reply.Success)
	if err != nil {
		s.relayError(w, "page/replace-selection", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// relayError maps a transport failure to a status code. No agent
// listening is 503, a timeout is 504, anything else is 502.
func (s *Server) relayError(w http.ResponseWriter, route string, err error) {
	code := http.StatusBadGateway
	msg := "relay failed"
	switch {
	case errors.Is(err, bus.ErrNoResponders):
		code, msg = http.StatusServiceUnavailable, "no agent connected"
	case errors.Is(err, bus.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code, msg = http.StatusGatewayTimeout, "relay timed out"
	}
	s.logger.Warn("RELAY_REQUEST_FAILED", zap.String("route", route), zap.Error(err))
	writeError(w, code, msg)
}

// ============================================================================
// SETTINGS HANDLERS
// ============================================================================

// SettingsPatch is the body of PUT /v1/settings. Omitted fields keep their
// stored values.
type SettingsPatch struct {
	Enabled        *bool   `json:"enabled,omitempty"`
	Model          *string `json:"model,omitempty"`
	DebounceTimeMs *int    `json:"debounce_time_ms,omitempty"`
}

// apply writes the set fields onto st.
func (p SettingsPatch) apply(st *config.Settings) {
	if p.Enabled != nil {
		st.Enabled = *p.Enabled
	}
	if p.Model != nil {
		st.Model = *p.Model
	}
	if p.DebounceTimeMs != nil {
		st.DebounceTimeMs = *p.DebounceTimeMs
	}
}

// handleGetSettings handles GET /v1/settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	store := s.settings
	s.mu.RUnlock()

	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "settings store not configured")
		return
	}
	st, err := store.Load()
	if err != nil {
		s.logger.Error("SETTINGS_LOAD_FAILED", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePutSettings handles PUT /v1/settings.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	store, onSave := s.settings, s.onSettings
	s.mu.RUnlock()

	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "settings store not configured")
		return
	}

	var patch SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	cfg, err := store.Update(func(c *config.Config) error {
		patch.apply(&c.Settings)
		return nil
	})
	if err != nil {
		var verrs config.ValidateErrors
		if errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, verrs.Error())
			return
		}
		s.logger.Error("SETTINGS_SAVE_FAILED", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	s.logger.Info("SETTINGS_UPDATED",
		zap.Bool("enabled", cfg.Settings.Enabled),
		zap.String("model", cfg.Settings.Model),
		zap.Int("debounce_ms", cfg.Settings.DebounceTimeMs),
	)
	if onSave != nil {
		onSave(cfg.Settings)
	}
	writeJSON(w, http.StatusOK, cfg.Settings)
}

// ============================================================================
// HEALTH AND STATS HANDLERS
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	OllamaRunning  bool      `json:"ollama_running"`
	OllamaChecked  time.Time `json:"ollama_checked_at,omitempty"`
	CacheEntries   int       `json:"cache_entries"`
	PagesConnected int64     `json:"pages_connected"`
}

// handleHealth handles GET /health. The daemon is "ok" when the model
// service was reachable at the last probe and "degraded" otherwise; the
// endpoint itself always answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	monitor, c, bridge := s.monitor, s.cache, s.bridge
	s.mu.RUnlock()

	health := HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(s.stats.Uptime().Seconds()),
	}

	if monitor != nil {
		snap := monitor.Snapshot()
		if snap.Checks == 0 {
			ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
			monitor.Check(ctx)
			cancel()
			snap = monitor.Snapshot()
		}
		health.OllamaRunning = snap.Running
		health.OllamaChecked = snap.CheckedAt
	} else {
		health.OllamaRunning = s.relay.CheckStatus(r.Context()).Online()
	}
	if !health.OllamaRunning {
		health.Status = "degraded"
	}

	if c != nil {
		health.CacheEntries = c.Len()
	}
	if bridge != nil {
		health.PagesConnected = bridge.Connected()
	}

	writeJSON(w, http.StatusOK, health)
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	ServerStats
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		ServerStats:   s.stats.GetStats(),
		UptimeSeconds: int64(s.stats.Uptime().Seconds()),
	})
}

// ============================================================================
// CACHE HANDLERS
// ============================================================================

// handleCacheStats handles GET /cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	c := s.cache
	s.mu.RUnlock()

	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}
	writeJSON(w, http.StatusOK, c.Stats())
}

// handleCacheClear handles POST /cache/clear.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	c := s.cache
	s.mu.RUnlock()

	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}

	c.Clear()
	s.logger.Info("CACHE_CLEARED", zap.String("client_ip", GetClientIP(r)))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "cache cleared",
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
// Request contexts derive from ctx, so WebSocket bridges end with it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	limiter := s.limiter
	s.mu.Unlock()

	if limiter != nil {
		go limiter.Run(ctx)
	}

	s.logger.Info("SERVER_START", zap.String("addr", ln.Addr().String()), zap.String("version", Version))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("SERVER_SHUTDOWN")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

// decodeJSON reads a bounded JSON body into v. It writes the error
// response itself and reports whether the caller should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
