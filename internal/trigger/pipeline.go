// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package trigger

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/jeranaias/llmspell/internal/debounce"
	"github.com/jeranaias/llmspell/internal/page"
)

// =============================================================================
// PORTS
// =============================================================================

// Gate decides whether a word is worth a model call.
type Gate interface {
	Allow(s string) bool
}

// Corrector returns the model's spelling of a word, or the word itself.
type Corrector interface {
	CorrectWord(ctx context.Context, word string) string
}

// Suggester offers a correction next to a field.
type Suggester interface {
	Show(ctx context.Context, field page.Field, original, corrected string, rect page.Rect) error
}

// Recorder observes check outcomes.
type Recorder interface {
	CheckFinished(outcome string)
}

// Check outcomes.
const (
	OutcomeDisabled  = "disabled"
	OutcomeEmpty     = "empty"
	OutcomeGated     = "gated"
	OutcomeUnchanged = "unchanged"
	OutcomeStale     = "stale"
	OutcomeSuggested = "suggested"
	OutcomeError     = "error"
)

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline watches a document's editable fields and offers corrections for
// the last word typed once the user pauses.
type Pipeline struct {
	doc       page.Document
	gate      Gate
	corrector Corrector
	suggester Suggester
	debouncer *debounce.Debouncer
	logger    *zap.Logger
	recorder  Recorder

	enabled atomic.Bool

	mu       sync.Mutex
	attached map[string]*fieldState
	ctx      context.Context
	unsub    func()
}

type fieldState struct {
	field page.Field

	// gen is bumped by every input event. A check only shows its result
	// if gen still holds the value it started with.
	gen atomic.Uint64

	// checking serializes checks on one field.
	checking sync.Mutex
}

// Config holds pipeline options.
type Config struct {
	// Delay is the quiet interval before a check (default: 1s).
	Delay time.Duration

	// Clock drives the debounce timers (default: wall clock).
	Clock clock.Clock

	Logger   *zap.Logger
	Recorder Recorder
}

// New creates a pipeline. It does nothing until Start.
func New(doc page.Document, gate Gate, corrector Corrector, suggester Suggester, cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts []debounce.Option
	if cfg.Clock != nil {
		opts = append(opts, debounce.WithClock(cfg.Clock))
	}

	p := &Pipeline{
		doc:       doc,
		gate:      gate,
		corrector: corrector,
		suggester: suggester,
		debouncer: debounce.New(cfg.Delay, opts...),
		logger:    logger,
		recorder:  cfg.Recorder,
		attached:  make(map[string]*fieldState),
		ctx:       context.Background(),
	}
	p.enabled.Store(true)
	return p
}

// Start attaches to every eligible field and follows document changes.
// ctx bounds all page and model calls made by checks.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.unsub != nil {
		p.mu.Unlock()
		return nil
	}
	p.ctx = ctx
	p.unsub = p.doc.Subscribe(p.handleEvent)
	p.mu.Unlock()

	_, err := p.AttachAll(ctx)
	return err
}

// Stop detaches from the document and cancels pending checks. A check
// already running finishes first.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	unsub := p.unsub
	p.unsub = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	p.debouncer.Stop()
}

// SetEnabled turns checking on or off. Input while disabled is ignored.
func (p *Pipeline) SetEnabled(on bool) {
	p.enabled.Store(on)
	p.logger.Info("SPELLCHECK_TOGGLED", zap.Bool("enabled", on))
}

// Enabled reports whether checking is on.
func (p *Pipeline) Enabled() bool {
	return p.enabled.Load()
}

// SetDelay changes the quiet interval for future input.
func (p *Pipeline) SetDelay(d time.Duration) {
	p.debouncer.SetDelay(d)
}

// Delay returns the quiet interval.
func (p *Pipeline) Delay() time.Duration {
	return p.debouncer.Delay()
}

// Attach starts watching field. Attaching twice is a no-op; it reports
// whether the field was new.
func (p *Pipeline) Attach(field page.Field) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.attached[field.ID()]; ok {
		return false
	}
	p.attached[field.ID()] = &fieldState{field: field}
	p.logger.Debug("FIELD_ATTACHED", zap.String("field", field.ID()), zap.String("kind", string(field.Kind())))
	return true
}

// AttachAll attaches every eligible field and forgets fields that left the
// document. It returns how many fields were newly attached.
func (p *Pipeline) AttachAll(ctx context.Context) (int, error) {
	fields, err := p.doc.Fields(ctx)
	if err != nil {
		return 0, err
	}

	present := make(map[string]bool, len(fields))
	added := 0
	for _, f := range fields {
		present[f.ID()] = true
		if p.Attach(f) {
			added++
		}
	}

	p.mu.Lock()
	var gone []string
	for id := range p.attached {
		if !present[id] {
			gone = append(gone, id)
			delete(p.attached, id)
		}
	}
	p.mu.Unlock()

	for _, id := range gone {
		p.debouncer.Cancel(id)
	}
	return added, nil
}

// Attached reports whether a field is being watched.
func (p *Pipeline) Attached(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.attached[id]
	return ok
}

// Flush runs a field's pending check now instead of after the delay.
func (p *Pipeline) Flush(id string) bool {
	return p.debouncer.Flush(id)
}

func (p *Pipeline) handleEvent(ev page.Event) {
	switch ev.Type {
	case page.EventInput:
		p.onInput(ev.FieldID)
	case page.EventMutation:
		p.mu.Lock()
		ctx := p.ctx
		p.mu.Unlock()
		if _, err := p.AttachAll(ctx); err != nil {
			p.logger.Warn("ATTACH_FAILED", zap.Error(err))
		}
	}
}

func (p *Pipeline) onInput(id string) {
	p.mu.Lock()
	st, ok := p.attached[id]
	p.mu.Unlock()
	if !ok {
		return
	}

	// Bump even when disabled so a reply already in flight is dropped.
	gen := st.gen.Add(1)
	if !p.enabled.Load() {
		return
	}
	p.debouncer.Trigger(id, func() { p.check(st, gen) })
}

// check runs gate, corrector and suggester for the last word of the field.
func (p *Pipeline) check(st *fieldState, gen uint64) {
	st.checking.Lock()
	defer st.checking.Unlock()

	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()

	outcome := p.runCheck(ctx, st, gen)
	if p.recorder != nil {
		p.recorder.CheckFinished(outcome)
	}
}

func (p *Pipeline) runCheck(ctx context.Context, st *fieldState, gen uint64) string {
	if !p.enabled.Load() {
		return OutcomeDisabled
	}
	if st.gen.Load() != gen {
		return OutcomeStale
	}

	value, err := st.field.Value(ctx)
	if err != nil {
		p.logger.Warn("FIELD_READ_FAILED", zap.String("field", st.field.ID()), zap.Error(err))
		return OutcomeError
	}

	word := LastWord(value)
	if word == "" {
		return OutcomeEmpty
	}
	if !p.gate.Allow(word) {
		return OutcomeGated
	}

	corrected := p.corrector.CorrectWord(ctx, word)

	if st.gen.Load() != gen {
		p.logger.Debug("STALE_REPLY_DISCARDED", zap.String("field", st.field.ID()), zap.String("word", word))
		return OutcomeStale
	}
	if corrected == "" || SameWord(corrected, word) {
		return OutcomeUnchanged
	}

	rect, err := st.field.Rect(ctx)
	if err != nil {
		p.logger.Warn("FIELD_RECT_FAILED", zap.String("field", st.field.ID()), zap.Error(err))
		return OutcomeError
	}
	if err := p.suggester.Show(ctx, st.field, word, corrected, rect); err != nil {
		p.logger.Warn("SUGGESTION_FAILED", zap.String("field", st.field.ID()), zap.Error(err))
		return OutcomeError
	}

	p.logger.Info("SUGGESTION_SHOWN",
		zap.String("field", st.field.ID()),
		zap.String("original", word),
		zap.String("corrected", corrected),
	)
	return OutcomeSuggested
}

// LastWord returns the last whitespace-delimited token of the trimmed value.
func LastWord(value string) string {
	words := strings.Fields(value)
	if len(words) == 0 {
		return ""
	}
	return words[len(words)-1]
}

// SameWord compares two words ignoring case.
func SameWord(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}
