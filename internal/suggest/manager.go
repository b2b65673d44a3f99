// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/jeranaias/llmspell/internal/page"
)

const (
	// PopupID is the element id of the one suggestion popup.
	PopupID = "llm-spell-popup"

	// ApplyID and IgnoreID are the popup's buttons.
	ApplyID  = PopupID + "-apply"
	IgnoreID = PopupID + "-ignore"

	// Margin is the gap between the anchor's bottom edge and the popup.
	Margin = 5

	// ZIndex keeps the popup above page content.
	ZIndex = 10000

	// DefaultGrace delays outside-click dismissal so the click that led to
	// the popup does not close it.
	DefaultGrace = 100 * time.Millisecond
)

// ErrNoPopup is returned by Apply and Ignore when nothing is shown.
var ErrNoPopup = errors.New("no suggestion popup shown")

// Outcome is how a popup ended.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDismissed Outcome = "dismissed"
	OutcomeReplaced  Outcome = "replaced"
)

// Renderer draws and removes overlays.
type Renderer interface {
	ShowOverlay(ctx context.Context, o page.Overlay) error
	RemoveOverlay(ctx context.Context, id string) error
}

// Recorder observes popup activity.
type Recorder interface {
	PopupShown()
	PopupClosed(outcome string)
}

// Popup is the suggestion currently on screen.
type Popup struct {
	FieldID   string
	Original  string
	Corrected string
	Overlay   page.Overlay

	field page.Field
	seq   uint64
	armed bool
	timer *clock.Timer
}

// Manager owns the singleton suggestion popup for one document.
type Manager struct {
	doc       page.Document
	renderers []Renderer
	clock     clock.Clock
	grace     time.Duration
	logger    *zap.Logger
	recorder  Recorder

	mu      sync.Mutex
	current *Popup
	seq     uint64
	ctx     context.Context
	cancel  func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for the grace delay.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithGrace changes the outside-click grace delay.
func WithGrace(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRenderer adds a renderer that mirrors the document's overlay, such
// as a terminal.
func WithRenderer(r Renderer) Option {
	return func(m *Manager) { m.renderers = append(m.renderers, r) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager creates a manager drawing into doc. Call Start to handle clicks.
func NewManager(doc page.Document, opts ...Option) *Manager {
	m := &Manager{
		doc:       doc,
		renderers: []Renderer{doc},
		clock:     clock.New(),
		grace:     DefaultGrace,
		logger:    zap.NewNop(),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the document's clicks. ctx bounds the page calls made
// from click handling.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	m.ctx = ctx
	m.cancel = m.doc.Subscribe(m.handleEvent)
}

// Close unsubscribes and removes any popup.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	p := m.takeLocked()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p != nil {
		m.remove(context.Background())
		m.closed(OutcomeDismissed)
	}
}

// Current returns a copy of the popup on screen.
func (m *Manager) Current() (Popup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Popup{}, false
	}
	p := *m.current
	p.field = nil
	p.timer = nil
	return p, true
}

// Show replaces any popup with one suggesting corrected for original,
// anchored below rect in document coordinates.
func (m *Manager) Show(ctx context.Context, field page.Field, original, corrected string, rect page.Rect) error {
	m.mu.Lock()
	prev := m.takeLocked()
	m.mu.Unlock()
	if prev != nil {
		m.closed(OutcomeReplaced)
	}

	// Tear down unconditionally: the element may exist without our state.
	m.remove(ctx)

	scroll, err := m.doc.Scroll(ctx)
	if err != nil {
		return err
	}

	o := page.Overlay{
		ID:        PopupID,
		Original:  original,
		Corrected: corrected,
		Left:      rect.Left + scroll.X,
		Top:       rect.Bottom + scroll.Y + Margin,
		ZIndex:    ZIndex,
		ApplyID:   ApplyID,
		IgnoreID:  IgnoreID,
	}

	for i, r := range m.renderers {
		if err := r.ShowOverlay(ctx, o); err != nil {
			if i == 0 {
				return err
			}
			m.logger.Warn("POPUP_RENDER_FAILED", zap.Error(err))
		}
	}

	m.mu.Lock()
	m.seq++
	seq := m.seq
	p := &Popup{
		FieldID:   field.ID(),
		Original:  original,
		Corrected: corrected,
		Overlay:   o,
		field:     field,
		seq:       seq,
	}
	p.timer = m.clock.AfterFunc(m.grace, func() { m.arm(seq) })
	m.current = p
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.PopupShown()
	}
	m.logger.Debug("POPUP_SHOWN",
		zap.String("field", p.FieldID),
		zap.String("original", original),
		zap.String("corrected", corrected),
	)
	return nil
}

// Apply replaces the first occurrence of the original text in the field
// with the correction and closes the popup. The write raises no input
// event.
func (m *Manager) Apply(ctx context.Context) error {
	m.mu.Lock()
	p := m.takeLocked()
	m.mu.Unlock()
	if p == nil {
		return ErrNoPopup
	}

	var errs []error
	if v, err := p.field.Value(ctx); err != nil {
		errs = append(errs, err)
	} else if strings.Contains(v, p.Original) {
		errs = append(errs, p.field.SetValue(ctx, strings.Replace(v, p.Original, p.Corrected, 1)))
	}
	m.remove(ctx)
	m.closed(OutcomeApplied)
	return errors.Join(errs...)
}

// Ignore closes the popup without touching the field.
func (m *Manager) Ignore(ctx context.Context) error {
	m.mu.Lock()
	p := m.takeLocked()
	m.mu.Unlock()
	if p == nil {
		return ErrNoPopup
	}
	m.remove(ctx)
	m.closed(OutcomeIgnored)
	return nil
}

// arm enables outside-click dismissal for popup seq, if still shown.
func (m *Manager) arm(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.seq == seq {
		m.current.armed = true
	}
}

// Armed reports whether the popup on screen reacts to outside clicks.
func (m *Manager) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.armed
}

func (m *Manager) handleEvent(ev page.Event) {
	if ev.Type != page.EventClick {
		return
	}

	m.mu.Lock()
	p := m.current
	ctx := m.ctx
	m.mu.Unlock()
	if p == nil {
		return
	}

	switch {
	case ev.Target == ApplyID:
		if err := m.Apply(ctx); err != nil && !errors.Is(err, ErrNoPopup) {
			m.logger.Warn("POPUP_APPLY_FAILED", zap.Error(err))
		}
	case ev.Target == IgnoreID:
		_ = m.Ignore(ctx)
	case insidePopup(ev.Target):
		// Clicks on the popup body are not outside clicks.
	default:
		m.dismiss(ctx, p.seq)
	}
}

// dismiss closes popup seq if it is still shown and armed. The listener is
// one-shot: closing the popup disarms it.
func (m *Manager) dismiss(ctx context.Context, seq uint64) {
	m.mu.Lock()
	if m.current == nil || m.current.seq != seq || !m.current.armed {
		m.mu.Unlock()
		return
	}
	m.takeLocked()
	m.mu.Unlock()

	m.remove(ctx)
	m.closed(OutcomeDismissed)
}

// takeLocked clears the current popup and stops its grace timer.
func (m *Manager) takeLocked() *Popup {
	p := m.current
	if p == nil {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	m.current = nil
	return p
}

func (m *Manager) remove(ctx context.Context) {
	for _, r := range m.renderers {
		if err := r.RemoveOverlay(ctx, PopupID); err != nil {
			m.logger.Debug("POPUP_REMOVE_FAILED", zap.Error(err))
		}
	}
}

func (m *Manager) closed(o Outcome) {
	if m.recorder != nil {
		m.recorder.PopupClosed(string(o))
	}
	m.logger.Debug("POPUP_CLOSED", zap.String("outcome", string(o)))
}

func insidePopup(target string) bool {
	return target == PopupID || strings.HasPrefix(target, PopupID+"-")
}
