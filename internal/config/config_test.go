// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Settings.Enabled)
	assert.Equal(t, "tinyllama", cfg.Settings.Model)
	assert.Equal(t, time.Second, cfg.Settings.Debounce())
	assert.Equal(t, 30*time.Second, cfg.Ollama.Timeout())
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, "127.0.0.1:8790", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Status.PollInterval())
	assert.Equal(t, 5*time.Second, cfg.Status.WatchInterval())
}

func TestLoadFromPath_TOMLKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeFile(t, "config.toml", `
[settings]
enabled = false
debounce_time_ms = 250

[ollama]
url = "http://localhost:11434"
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.False(t, cfg.Settings.Enabled)
	assert.Equal(t, 250, cfg.Settings.DebounceTimeMs)
	assert.Equal(t, "tinyllama", cfg.Settings.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
	assert.Equal(t, 8790, cfg.Server.Port)
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"settings":{"enabled":true,"model":"llama3","debounce_time_ms":500}}`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.Settings.Model)
	assert.Equal(t, 500, cfg.Settings.DebounceTimeMs)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	path := writeFile(t, "config.toml", `
[ollama]
url = "not a url"
[server]
port = 70000
`)
	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{"ollama.url", "server.port"}, fields)
}

func TestLoadFromPath_Malformed(t *testing.T) {
	path := writeFile(t, "config.toml", "[settings\nenabled = ")
	_, err := LoadFromPath(path)
	assert.Error(t, err)
}

func TestLoad_FallsBackToDefaults(t *testing.T) {
	t.Setenv("LLMSPELL_HOME", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Settings, cfg.Settings)
}

func TestLoad_PrefersTOMLOverJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LLMSPELL_HOME", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[settings]\nmodel = \"from-toml\"\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"settings":{"model":"from-json"}}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-toml", cfg.Settings.Model)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LLMSPELL_MODEL", "phi3")
	t.Setenv("LLMSPELL_ENABLED", "false")
	t.Setenv("LLMSPELL_DEBOUNCE_MS", "400")
	t.Setenv("LLMSPELL_OLLAMA_URL", "http://127.0.0.1:9999")
	t.Setenv("LLMSPELL_PORT", "9000")
	t.Setenv("LLMSPELL_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("LLMSPELL_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "phi3", cfg.Settings.Model)
	assert.False(t, cfg.Settings.Enabled)
	assert.Equal(t, 400, cfg.Settings.DebounceTimeMs)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Ollama.URL)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Bus.NATSURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyEnvOverrides_IgnoresBadNumbers(t *testing.T) {
	t.Setenv("LLMSPELL_DEBOUNCE_MS", "soon")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 1000, cfg.Settings.DebounceTimeMs)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"empty model", func(c *Config) { c.Settings.Model = " " }, "settings.model"},
		{"zero debounce", func(c *Config) { c.Settings.DebounceTimeMs = 0 }, "settings.debounce_time_ms"},
		{"bad scheme", func(c *Config) { c.Ollama.URL = "ftp://x" }, "ollama.url"},
		{"remote model", func(c *Config) { c.Ollama.URL = "http://10.1.2.3:11434" }, "ollama.url"},
		{"public bind", func(c *Config) { c.Server.Host = "0.0.0.0" }, "server.host"},
		{"max below min", func(c *Config) { c.Heuristic.MaxLength = 2 }, "heuristic.max_length"},
		{"cache", func(c *Config) { c.Cache.MaxEntries = 0 }, "cache.max_entries"},
		{"burst", func(c *Config) { c.Server.RateBurst = 0 }, "server.rate_burst"},
		{"level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"nats", func(c *Config) { c.Bus.NATSURL = "::" }, "bus.nats_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_AllowRemote(t *testing.T) {
	cfg := Default()
	cfg.Ollama.URL = "http://10.1.2.3:11434"
	cfg.Ollama.AllowRemote = true
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.AllowRemote = true
	assert.NoError(t, cfg.Validate())
}

func TestSetDefaults_LeavesBooleans(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.False(t, cfg.Settings.Enabled)
	assert.Equal(t, 1000, cfg.Settings.DebounceTimeMs)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("settings.enabled", "false"))
	require.NoError(t, cfg.Set("settings.debounce_time_ms", "750"))
	require.NoError(t, cfg.Set("settings.model", "mistral"))
	require.NoError(t, cfg.Set("server.rate_limit", "2.5"))
	require.NoError(t, cfg.Set("server.allowed_origins", "http://a.test, http://b.test"))
	require.NoError(t, cfg.Set("bus.nats_url", "nats://x:4222"))

	v, err := cfg.Get("settings.debounce_time_ms")
	require.NoError(t, err)
	assert.Equal(t, 750, v)

	assert.False(t, cfg.Settings.Enabled)
	assert.Equal(t, "mistral", cfg.Settings.Model)
	assert.Equal(t, 2.5, cfg.Server.RateLimit)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "nats://x:4222", cfg.Bus.NATSURL)

	assert.Error(t, cfg.Set("settings.nope", "1"))
	assert.Error(t, cfg.Set("settings.debounce_time_ms", "fast"))
	assert.Error(t, cfg.Set("settings.model.x", "1"))
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	assert.Contains(t, keys, "settings.enabled")
	assert.Contains(t, keys, "settings.debounce_time_ms")
	assert.Contains(t, keys, "ollama.url")
	assert.Contains(t, keys, "server.allowed_origins")
	assert.Contains(t, keys, "version")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestClone_Independent(t *testing.T) {
	cfg := Default()
	cfg.Server.AllowedOrigins = []string{"http://a.test"}
	clone := cfg.Clone()
	clone.Server.AllowedOrigins[0] = "http://b.test"
	clone.Settings.Model = "other"
	assert.Equal(t, "http://a.test", cfg.Server.AllowedOrigins[0])
	assert.Equal(t, "tinyllama", cfg.Settings.Model)
}

func TestSaveTOML_RoundTripAndPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Settings.Enabled = false
	cfg.Settings.Model = "gemma"
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if filepath.Separator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Settings, got.Settings)
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

func TestSettingsStore_LoadMissingIsDefault(t *testing.T) {
	store := NewSettingsStore(filepath.Join(t.TempDir(), "config.toml"))
	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Settings, st)
}

func TestSettingsStore_SaveKeepsOtherSections(t *testing.T) {
	path := writeFile(t, "config.toml", "[server]\nport = 9100\n")
	store := NewSettingsStore(path)

	require.NoError(t, store.Save(Settings{Enabled: false, Model: "phi3", DebounceTimeMs: 300}))

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Settings{Enabled: false, Model: "phi3", DebounceTimeMs: 300}, st)

	cfg, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestSettingsStore_SaveRejectsInvalid(t *testing.T) {
	store := NewSettingsStore(filepath.Join(t.TempDir(), "config.toml"))
	err := store.Save(Settings{Enabled: true, Model: "x", DebounceTimeMs: -5})
	assert.Error(t, err)
	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr), "nothing written")
}

func TestSettingsStore_IgnoresEnvironment(t *testing.T) {
	t.Setenv("LLMSPELL_MODEL", "from-env")
	store := NewSettingsStore(filepath.Join(t.TempDir(), "config.toml"))
	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tinyllama", st.Model)
}

func TestSettingsStore_Update(t *testing.T) {
	store := NewSettingsStore(filepath.Join(t.TempDir(), "config.json"))
	cfg, err := store.Update(func(c *Config) error { return c.Set("settings.enabled", "false") })
	require.NoError(t, err)
	assert.False(t, cfg.Settings.Enabled)

	st, err := store.Load()
	require.NoError(t, err)
	assert.False(t, st.Enabled)

	_, err = store.Update(func(c *Config) error { return c.Set("server.port", "0") })
	assert.Error(t, err)
}

// =============================================================================
// WATCHER
// =============================================================================

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	var last atomic.Pointer[Config]
	w, err := NewWatcher(path, func(c *Config) { last.Store(c) }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer func() {
		cancel()
		w.Close()
		<-w.Done()
	}()

	store := NewSettingsStore(path)
	require.NoError(t, store.Save(Settings{Enabled: false, Model: "tinyllama", DebounceTimeMs: 200}))

	require.Eventually(t, func() bool {
		c := last.Load()
		return c != nil && !c.Settings.Enabled && c.Settings.DebounceTimeMs == 200
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_SkipsInvalidEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	var calls atomic.Int32
	w, err := NewWatcher(path, func(*Config) { calls.Add(1) }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer func() {
		cancel()
		w.Close()
		<-w.Done()
	}()

	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = -1\n"), 0600))
	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, calls.Load())
}
