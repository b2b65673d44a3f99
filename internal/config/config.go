// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/llmspell/internal/offline"
	"github.com/jeranaias/llmspell/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete llmspell configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Settings are the user-facing toggles shared with the popup.
	Settings Settings `toml:"settings" json:"settings"`

	Ollama    OllamaConfig    `toml:"ollama" json:"ollama"`
	Heuristic HeuristicConfig `toml:"heuristic" json:"heuristic"`
	Cache     CacheConfig     `toml:"cache" json:"cache"`
	Server    ServerConfig    `toml:"server" json:"server"`
	Bus       BusConfig       `toml:"bus" json:"bus"`
	Status    StatusConfig    `toml:"status" json:"status"`
	Browser   BrowserConfig   `toml:"browser" json:"browser"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
}

// Settings holds the persisted user settings.
type Settings struct {
	// Enabled turns as-you-type checking on or off.
	Enabled bool `toml:"enabled" json:"enabled"`
	// Model is the Ollama model used for every request.
	Model string `toml:"model" json:"model"`
	// DebounceTimeMs is the quiet interval before a word is checked.
	DebounceTimeMs int `toml:"debounce_time_ms" json:"debounce_time_ms"`
}

// Debounce returns the quiet interval as a duration.
func (s Settings) Debounce() time.Duration {
	return time.Duration(s.DebounceTimeMs) * time.Millisecond
}

// OllamaConfig contains the model service connection.
type OllamaConfig struct {
	URL         string `toml:"url" json:"url"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
	// AllowRemote permits a model service that is not on loopback.
	AllowRemote bool `toml:"allow_remote" json:"allow_remote"`
}

// Timeout returns the request timeout.
func (o OllamaConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// HeuristicConfig bounds the words worth a model call.
type HeuristicConfig struct {
	MinLength int `toml:"min_length" json:"min_length"`
	MaxLength int `toml:"max_length" json:"max_length"`
}

// CacheConfig sizes the correction cache.
type CacheConfig struct {
	MaxEntries int `toml:"max_entries" json:"max_entries"`
}

// ServerConfig contains the local HTTP surface.
type ServerConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`
	// AllowedOrigins lists extra CORS origins. Browser extension origins
	// are always allowed.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`
	// AllowRemote permits binding a non-loopback address.
	AllowRemote bool `toml:"allow_remote" json:"allow_remote"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BusConfig selects the relay transport.
type BusConfig struct {
	// NATSURL selects a NATS server. Empty keeps the relay in process.
	NATSURL string `toml:"nats_url" json:"nats_url"`
}

// StatusConfig controls status polling.
type StatusConfig struct {
	// PollIntervalSecs is how often the daemon probes the model service.
	PollIntervalSecs int `toml:"poll_interval_secs" json:"poll_interval_secs"`
	// WatchIntervalSecs is how often `status --watch` refreshes.
	WatchIntervalSecs int `toml:"watch_interval_secs" json:"watch_interval_secs"`
}

// PollInterval returns the daemon probe interval.
func (s StatusConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSecs) * time.Second
}

// WatchInterval returns the interactive refresh interval.
func (s StatusConfig) WatchInterval() time.Duration {
	return time.Duration(s.WatchIntervalSecs) * time.Second
}

// BrowserConfig points the page host at a browser.
type BrowserConfig struct {
	// ControlURL is a DevTools websocket URL. Empty launches a browser.
	ControlURL string `toml:"control_url" json:"control_url"`
	Headless   bool   `toml:"headless" json:"headless"`
	// URL is opened when a browser is launched.
	URL string `toml:"url" json:"url"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
	JSON  bool   `toml:"json" json:"json"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with the default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Settings: Settings{
			Enabled:        true,
			Model:          "tinyllama",
			DebounceTimeMs: 1000,
		},

		Ollama: OllamaConfig{
			URL:         "http://127.0.0.1:11434",
			TimeoutSecs: 30,
		},

		Heuristic: HeuristicConfig{
			MinLength: 3,
			MaxLength: 100,
		},

		Cache: CacheConfig{
			MaxEntries: 100,
		},

		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8790,
			RateLimit: 20,
			RateBurst: 40,
		},

		Status: StatusConfig{
			PollIntervalSecs:  30,
			WatchIntervalSecs: 5,
		},

		Browser: BrowserConfig{
			Headless: true,
			URL:      "about:blank",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the llmspell configuration directory. LLMSPELL_HOME
// overrides the default of ~/.llmspell.
func ConfigDir() (string, error) {
	if dir := os.Getenv("LLMSPELL_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".llmspell"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config directory. It tries TOML, then
// JSON, then falls back to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a file, applies environment
// overrides and validates the result.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile decodes a config file over the defaults, without environment
// overrides. Keys missing from the file keep their default values.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# llmspell configuration file\n")
	buf.WriteString("# Edit with care; `llmspell config set` keeps it valid.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as JSON, atomically with 0600
// permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Settings.Model) == "" {
		add("settings.model", "model cannot be empty")
	}
	if c.Settings.DebounceTimeMs < 1 || c.Settings.DebounceTimeMs > 60000 {
		add("settings.debounce_time_ms", "must be between 1 and 60000, got %d", c.Settings.DebounceTimeMs)
	}

	if err := offline.ValidateModelURL(c.Ollama.URL, c.Ollama.AllowRemote); err != nil {
		add("ollama.url", "%q: %v", c.Ollama.URL, err)
	}
	if c.Ollama.TimeoutSecs < 1 {
		add("ollama.timeout_secs", "must be at least 1, got %d", c.Ollama.TimeoutSecs)
	}

	if c.Heuristic.MinLength < 1 {
		add("heuristic.min_length", "must be at least 1, got %d", c.Heuristic.MinLength)
	}
	if c.Heuristic.MaxLength < c.Heuristic.MinLength {
		add("heuristic.max_length", "must not be below min_length (%d), got %d", c.Heuristic.MinLength, c.Heuristic.MaxLength)
	}

	if c.Cache.MaxEntries < 1 {
		add("cache.max_entries", "must be at least 1, got %d", c.Cache.MaxEntries)
	}

	if err := offline.ValidateBindHost(c.Server.Host, c.Server.AllowRemote); err != nil {
		add("server.host", "%v", err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1 when rate_limit is set")
	}

	if c.Bus.NATSURL != "" {
		if u, err := url.Parse(c.Bus.NATSURL); err != nil || u.Host == "" {
			add("bus.nats_url", "invalid URL %q", c.Bus.NATSURL)
		}
	}

	if c.Status.PollIntervalSecs < 1 {
		add("status.poll_interval_secs", "must be at least 1, got %d", c.Status.PollIntervalSecs)
	}
	if c.Status.WatchIntervalSecs < 1 {
		add("status.watch_interval_secs", "must be at least 1, got %d", c.Status.WatchIntervalSecs)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "invalid level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero. Booleans are
// left alone because false is a valid choice.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Settings.Model == "" {
		c.Settings.Model = d.Settings.Model
	}
	if c.Settings.DebounceTimeMs == 0 {
		c.Settings.DebounceTimeMs = d.Settings.DebounceTimeMs
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = d.Ollama.URL
	}
	if c.Ollama.TimeoutSecs == 0 {
		c.Ollama.TimeoutSecs = d.Ollama.TimeoutSecs
	}
	if c.Heuristic.MinLength == 0 {
		c.Heuristic.MinLength = d.Heuristic.MinLength
	}
	if c.Heuristic.MaxLength == 0 {
		c.Heuristic.MaxLength = d.Heuristic.MaxLength
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = d.Cache.MaxEntries
	}
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Status.PollIntervalSecs == 0 {
		c.Status.PollIntervalSecs = d.Status.PollIntervalSecs
	}
	if c.Status.WatchIntervalSecs == 0 {
		c.Status.WatchIntervalSecs = d.Status.WatchIntervalSecs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - LLMSPELL_MODEL: overrides settings.model
//   - LLMSPELL_ENABLED: "1"/"true" or "0"/"false"
//   - LLMSPELL_DEBOUNCE_MS: overrides settings.debounce_time_ms
//   - LLMSPELL_OLLAMA_URL: overrides ollama.url
//   - LLMSPELL_PORT: overrides server.port
//   - LLMSPELL_NATS_URL: overrides bus.nats_url
//   - LLMSPELL_LOG_LEVEL: overrides logging.level
//   - LLMSPELL_BROWSER_URL: overrides browser.control_url
//
// Unparseable numbers are ignored.
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("LLMSPELL_MODEL"); model != "" {
		c.Settings.Model = model
	}
	if enabled := os.Getenv("LLMSPELL_ENABLED"); enabled != "" {
		c.Settings.Enabled = parseBool(enabled)
	}
	if ms := os.Getenv("LLMSPELL_DEBOUNCE_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			c.Settings.DebounceTimeMs = n
		}
	}
	if u := os.Getenv("LLMSPELL_OLLAMA_URL"); u != "" {
		c.Ollama.URL = u
	}
	if port := os.Getenv("LLMSPELL_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
	if u := os.Getenv("LLMSPELL_NATS_URL"); u != "" {
		c.Bus.NATSURL = u
	}
	if level := os.Getenv("LLMSPELL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if u := os.Getenv("LLMSPELL_BROWSER_URL"); u != "" {
		c.Browser.ControlURL = u
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation
// (e.g. "settings.debounce_time_ms").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type
// conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns every configuration key in dot notation.
func GetAllKeys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("toml"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, name, keys)
			continue
		}
		*keys = append(*keys, name)
	}
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String returns the config as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
