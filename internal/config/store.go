// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// =============================================================================
// SETTINGS STORE
// =============================================================================

// SettingsStore persists Settings inside a config file. Other sections of
// the file are preserved on save.
type SettingsStore struct {
	path string
	mu   sync.Mutex
}

// NewSettingsStore creates a store for the config file at path.
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// DefaultSettingsStore returns a store for ~/.llmspell/config.toml.
func DefaultSettingsStore() (*SettingsStore, error) {
	path, err := ConfigPathTOML()
	if err != nil {
		return nil, err
	}
	return NewSettingsStore(path), nil
}

// Path returns the backing file.
func (s *SettingsStore) Path() string {
	return s.path
}

// Load returns the stored settings, or the defaults when the file does not
// exist yet.
func (s *SettingsStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.read()
	if err != nil {
		return Settings{}, err
	}
	return cfg.Settings, nil
}

// Save validates st and writes it to the file.
func (s *SettingsStore) Save(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.read()
	if err != nil {
		return err
	}
	cfg.Settings = st
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.write(cfg)
}

// Update applies fn to the stored config, validates and saves it. It is how
// `config set` edits a single key.
func (s *SettingsStore) Update(fn func(*Config) error) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.read()
	if err != nil {
		return nil, err
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.write(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *SettingsStore) read() (*Config, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	cfg, err := ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return cfg, nil
}

func (s *SettingsStore) write(cfg *Config) error {
	if filepath.Ext(s.path) == ".json" {
		return SaveJSON(cfg, s.path)
	}
	return SaveTOML(cfg, s.path)
}

// =============================================================================
// WATCHER
// =============================================================================

// reloadDelay collapses the burst of events an editor produces on save.
const reloadDelay = 100 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	logger   *zap.Logger

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
}

// NewWatcher watches the directory holding path, so atomic replacements
// are seen too. onChange receives every successfully loaded and validated
// config; invalid edits are logged and skipped.
func NewWatcher(path string, onChange func(*Config), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Run processes events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				w.stopTimer()
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.stopTimer()
				return
			}
			w.logger.Warn("CONFIG_WATCH_ERROR", zap.Error(err))
		}
	}
}

// Close stops the watcher. Run returns shortly after.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Done is closed when Run has returned.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDelay, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) reload() {
	if _, err := os.Stat(w.path); err != nil {
		return
	}
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.logger.Warn("CONFIG_RELOAD_FAILED", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("CONFIG_RELOADED",
		zap.String("path", w.path),
		zap.Bool("enabled", cfg.Settings.Enabled),
		zap.String("model", cfg.Settings.Model),
		zap.Int("debounce_time_ms", cfg.Settings.DebounceTimeMs),
	)
	w.onChange(cfg)
}
