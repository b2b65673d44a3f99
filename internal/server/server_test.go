// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/jeranaias/llmspell/internal/bus"
	"github.com/jeranaias/llmspell/internal/cache"
	"github.com/jeranaias/llmspell/internal/config"
	"github.com/jeranaias/llmspell/internal/ollama"
	"github.com/jeranaias/llmspell/internal/page"
	"github.com/jeranaias/llmspell/internal/relay"
	"github.com/jeranaias/llmspell/internal/status"
	"github.com/jeranaias/llmspell/internal/telemetry"
)

// =============================================================================
// FIXTURE
// =============================================================================

type fakeProbe struct{ up atomic.Bool }

func (p *fakeProbe) IsRunning(context.Context) bool { return p.up.Load() }

type fakeService struct {
	err error
}

func (s *fakeService) ProcessText(ctx context.Context, kind ollama.TaskKind, text string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return strings.ReplaceAll(text, "teh", "the"), nil
}

func (s *fakeService) CorrectWord(ctx context.Context, word string) string {
	if word == "helllo" {
		return "hello"
	}
	return word
}

type fixture struct {
	srv     *Server
	handler http.Handler
	doc     *page.MemoryDocument
	probe   *fakeProbe
	service *fakeService
	cache   *cache.Cache
	store   *config.SettingsStore
	saved   atomic.Pointer[config.Settings]
}

type fixtureOpts struct {
	noPage    bool
	rateLimit float64
	rateBurst int
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		b.Close()
	})

	f := &fixture{
		doc:     page.NewMemoryDocument(),
		probe:   &fakeProbe{},
		service: &fakeService{},
		cache:   cache.New(10),
		store:   config.NewSettingsStore(filepath.Join(t.TempDir(), "config.toml")),
	}
	f.probe.up.Store(true)

	client := relay.NewClient(b, time.Second)
	_, err := relay.Serve(ctx, b, relay.SubjectBackground, relay.NewBackgroundAgent(f.probe, f.service, client, nil), nil)
	require.NoError(t, err)
	if !opts.noPage {
		_, err = relay.Serve(ctx, b, relay.SubjectPage, relay.NewPageAgent(f.doc, nil), nil)
		require.NoError(t, err)
	}

	cfg := config.Default().Server
	cfg.RateLimit = opts.rateLimit
	cfg.RateBurst = opts.rateBurst

	f.srv = NewServer(cfg, client).
		WithBus(b).
		WithCache(f.cache).
		WithMetrics(telemetry.New()).
		WithMonitor(status.NewMonitor(f.probe, time.Minute)).
		WithSettings(f.store, func(st config.Settings) { f.saved.Store(&st) })
	f.handler = f.srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) focus(t *testing.T, text string) page.Field {
	t.Helper()
	field := f.doc.AddField("msg", page.KindInput, page.Rect{})
	require.NoError(t, f.doc.SetText(context.Background(), "msg", text))
	require.NoError(t, f.doc.Focus("msg"))
	return field
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// =============================================================================
// RELAY ENDPOINTS
// =============================================================================

func TestHandleStatus(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, "GET", "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, relay.StatusOnline, decode[relay.StatusReply](t, w).Status)

	f.probe.up.Store(false)
	w = f.do(t, "GET", "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, relay.StatusOffline, decode[relay.StatusReply](t, w).Status)
}

func TestHandleProcess(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, "POST", "/v1/process", ProcessRequest{Task: "correct", Text: "teh cat"})
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[relay.ProcessReply](t, w)
	assert.True(t, reply.Success)
	assert.Equal(t, "the cat", reply.ProcessedText)
	assert.Equal(t, int64(1), f.srv.Stats().ProcessRequests)
}

func TestHandleProcess_FailureIsResultVariant(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.service.err = &ollama.ClientError{Type: ollama.ErrTypeNotRunning, Message: "Ollama is not running"}

	w := f.do(t, "POST", "/v1/process", ProcessRequest{Task: "rephrase", Text: "x"})
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[relay.ProcessReply](t, w)
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Error, "not running")
	assert.Equal(t, int64(1), f.srv.Stats().RelayFailures)
}

func TestHandleProcess_UnknownTask(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, "POST", "/v1/process", ProcessRequest{Task: "summarize", Text: "x"})
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[relay.ProcessReply](t, w)
	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.Error)
}

func TestHandleProcess_BadBody(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	req := httptest.NewRequest("POST", "/v1/process", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleProcess_BodyTooLarge(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	big := `{"task":"correct","text":"` + strings.Repeat("a", MaxRequestBodySize) + `"}`
	req := httptest.NewRequest("POST", "/v1/process", strings.NewReader(big))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleCorrectWord(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, "POST", "/v1/correct-word", WordRequest{Word: "helllo"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", decode[relay.WordReply](t, w).Corrected)
}

func TestHandleCorrectSelection_WritesBack(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	field := f.focus(t, "I saw teh dog")
	require.NoError(t, f.doc.Select("msg", 6, 9))

	w := f.do(t, "POST", "/v1/correct-selection", TextRequest{Text: "teh"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[relay.ProcessReply](t, w).Success)

	v, err := field.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "I saw the dog", v)
}

func TestHandlePageText(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, "GET", "/v1/page/text", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"text":null}`, w.Body.String())

	field := f.focus(t, "hello world")
	w = f.do(t, "GET", "/v1/page/text", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[relay.TextReply](t, w)
	require.NotNil(t, reply.Text)
	assert.Equal(t, "hello world", *reply.Text)

	w = f.do(t, "PUT", "/v1/page/text", TextRequest{Text: "goodbye"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[relay.SuccessReply](t, w).Success)

	v, err := field.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "goodbye", v)
}

func TestHandleReplaceSelection(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	field := f.focus(t, "one two three")
	require.NoError(t, f.doc.Select("msg", 4, 7))

	w := f.do(t, "POST", "/v1/page/replace-selection", TextRequest{Text: "2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[relay.SuccessReply](t, w).Success)

	v, err := field.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one 2 three", v)
}

func TestHandlePageText_NoPageAgentIsNoFocus(t *testing.T) {
	f := newFixture(t, fixtureOpts{noPage: true})

	w := f.do(t, "GET", "/v1/page/text", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"text": null}`, w.Body.String())

	w = f.do(t, "PUT", "/v1/page/text", TextRequest{Text: "x"})
	require.Equal(t, http.StatusOK, w.Code)
	r := decode[relay.SuccessReply](t, w)
	assert.False(t, r.Success)
	assert.Equal(t, page.ErrNoFocusedField.Error(), r.Error)

	w = f.do(t, "POST", "/v1/page/replace-selection", TextRequest{Text: "x"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[relay.SuccessReply](t, w).Success)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestHandleSettings(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, "GET", "/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[config.Settings](t, w)
	assert.Equal(t, config.Default().Settings, st)

	w = f.do(t, "PUT", "/v1/settings", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	st = decode[config.Settings](t, w)
	assert.False(t, st.Enabled)
	assert.Equal(t, "tinyllama", st.Model, "omitted fields keep their value")

	saved := f.saved.Load()
	require.NotNil(t, saved)
	assert.False(t, saved.Enabled)

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
}

func TestHandleSettings_Invalid(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(t, "PUT", "/v1/settings", map[string]any{"debounce_time_ms": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "debounce_time_ms")
	assert.Nil(t, f.saved.Load())
}

// =============================================================================
// HEALTH, CACHE, METRICS
// =============================================================================

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.cache.Store("helllo", "hello")

	w := f.do(t, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.OllamaRunning)
	assert.Equal(t, 1, h.CacheEntries)
	assert.Equal(t, Version, h.Version)
}

func TestHandleHealth_Degraded(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.probe.up.Store(false)

	w := f.do(t, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[HealthResponse](t, w)
	assert.Equal(t, "degraded", h.Status)
	assert.False(t, h.OllamaRunning)
}

func TestHandleCacheStatsAndClear(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.cache.Store("helllo", "hello")
	f.cache.Lookup("helllo")

	w := f.do(t, "GET", "/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[cache.Stats](t, w)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)

	w = f.do(t, "POST", "/cache/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.cache.Len())
}

func TestHandleStats(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.do(t, "POST", "/v1/correct-word", WordRequest{Word: "helllo"})
	f.do(t, "GET", "/v1/page/text", nil)

	w := f.do(t, "GET", "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[StatsResponse](t, w)
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.WordRequests)
	assert.Equal(t, int64(1), stats.PageRequests)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.do(t, "GET", "/v1/status", nil)

	w := f.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `llmspell_http_requests_total{code="200",route="/v1/status"} 1`)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	w := f.do(t, "GET", "/stats", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCORS(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	tests := []struct {
		origin string
		want   int
	}{
		{"chrome-extension://abcdefghijklmnop", http.StatusNoContent},
		{"moz-extension://1234-5678", http.StatusNoContent},
		{"https://evil.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest("OPTIONS", "/v1/process", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", "POST")
			w := httptest.NewRecorder()
			f.handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORS_ConfiguredOrigin(t *testing.T) {
	c := DefaultCORSConfig([]string{"http://localhost:3000"})
	assert.True(t, c.isOriginAllowed("http://localhost:3000"))
	assert.False(t, c.isOriginAllowed("http://localhost:3001"))
	assert.False(t, c.isOriginAllowed(""))
	assert.True(t, DefaultCORSConfig([]string{"*"}).isOriginAllowed("https://any.example"))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, fixtureOpts{rateLimit: 0.001, rateBurst: 2})

	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/stats", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/stats", nil).Code)
	w := f.do(t, "GET", "/stats", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_PerIPAndPrune(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 2, rl.Clients())

	rl.prune(time.Now().Add(time.Minute))
	assert.Equal(t, 0, rl.Clients())
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:5000", "", "203.0.113.7"},
		{"untrusted peer cannot forward", "203.0.113.7:5000", "1.2.3.4", "203.0.113.7"},
		{"trusted proxy forwards", "127.0.0.1:5000", "1.2.3.4, 10.0.0.1", "1.2.3.4"},
		{"trusted proxy with junk header", "127.0.0.1:5000", "not-an-ip", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

// =============================================================================
// PAGE BRIDGE
// =============================================================================

func TestPageBridge_RemoteAgentServesPageRequests(t *testing.T) {
	f := newFixture(t, fixtureOpts{noPage: true})
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/page/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Remote agent: answer every getText with a fixed text.
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req relay.Request
			if json.Unmarshal(data, &req) != nil {
				continue
			}
			reply, _ := json.Marshal(map[string]any{"id": req.ID, "text": "from remote"})
			if conn.Write(ctx, websocket.MessageText, reply) != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		return f.srv.bridge.Connected() == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/v1/page/text")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply relay.TextReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	require.NotNil(t, reply.Text)
	assert.Equal(t, "from remote", *reply.Text)
}

func TestPageBridge_RejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, fixtureOpts{noPage: true})
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/page/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, int64(0), f.srv.bridge.Connected())
}
