// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package status tracks whether the model service is reachable.
//
// The Monitor probes on a fixed interval (30 seconds in the daemon) and
// keeps the last answer, so handlers can report status without waiting on
// the network.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultInterval is the probe interval.
const DefaultInterval = 30 * time.Second

// Probe reports whether the model service answers.
type Probe interface {
	IsRunning(ctx context.Context) bool
}

// Snapshot is the last known status.
type Snapshot struct {
	Running   bool      `json:"ollama_running"`
	CheckedAt time.Time `json:"checked_at"`
	// Checks counts completed probes.
	Checks int64 `json:"checks"`
}

// Monitor probes periodically and remembers the result.
type Monitor struct {
	probe    Probe
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	onChange func(running bool)

	mu   sync.RWMutex
	snap Snapshot
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock driving the ticker.
func WithClock(c clock.Clock) Option { return func(m *Monitor) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Monitor) { m.logger = l } }

// OnChange registers fn to run after every probe with its result.
func OnChange(fn func(running bool)) Option { return func(m *Monitor) { m.onChange = fn } }

// NewMonitor creates a monitor. A non-positive interval uses DefaultInterval.
func NewMonitor(probe Probe, interval time.Duration, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		probe:    probe,
		interval: interval,
		clock:    clock.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run probes once immediately, then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check probes now and returns the result.
func (m *Monitor) Check(ctx context.Context) bool {
	running := m.probe.IsRunning(ctx)

	m.mu.Lock()
	changed := m.snap.Checks == 0 || m.snap.Running != running
	m.snap.Running = running
	m.snap.CheckedAt = m.clock.Now()
	m.snap.Checks++
	m.mu.Unlock()

	if changed {
		m.logger.Info("OLLAMA_STATUS_CHANGED", zap.Bool("running", running))
	}
	if m.onChange != nil {
		m.onChange(running)
	}
	return running
}

// Snapshot returns the last known status.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Running returns the last probe result; false before the first probe.
func (m *Monitor) Running() bool {
	return m.Snapshot().Running
}
