// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/jeranaias/llmspell/internal/ui/styles"
)

// =============================================================================
// BROWSER HOST
// =============================================================================

// RodConfig selects the browser page a RodDocument drives.
type RodConfig struct {
	// ControlURL is a DevTools WebSocket URL of a running Chrome. Empty
	// launches a new browser.
	ControlURL string `json:"control_url" toml:"control_url"`

	// Headless applies to launched browsers only.
	Headless bool `json:"headless" toml:"headless"`

	// URL opens a new tab. Empty attaches to the first open tab.
	URL string `json:"url" toml:"url"`
}

// RodDocument is a Document backed by a live Chrome tab over the DevTools
// protocol. Fields are addressed by a data-llmspell-id attribute that the
// installed hook assigns to every eligible element.
type RodDocument struct {
	page    *rod.Page
	browser *rod.Browser
	kill    func()
	logger  *zap.Logger

	stopExpose func() error
	removeInit func() error

	mu    sync.RWMutex
	known map[string]Kind

	subMu  sync.RWMutex
	subs   map[int]Handler
	nextID int

	events chan Event
	done   chan struct{}
	once   sync.Once
}

const emitBinding = "__llmspellEmit"

// findJS resolves a field id inside evaluated functions.
const findJS = `const find = (id) => document.querySelector('[data-llmspell-id="' + CSS.escape(id) + '"]');
const kindOf = (el) => el.isContentEditable ? 'contenteditable' : (el.tagName.toLowerCase() === 'textarea' ? 'textarea' : 'input');
const valueOf = (el) => el.isContentEditable ? el.innerText : el.value;`

// mutationDelayMS coalesces bursts of field additions and removals into
// one mutation event.
const mutationDelayMS = "100"

// hookJS tags eligible fields and forwards input, click and mutation events
// to the exposed binding. It is safe to run more than once.
const hookJS = `() => {
	const w = window;
	if (w.__llmspellHooked) return true;
	w.__llmspellHooked = true;
	const SEL = 'input[type="text"], textarea, [contenteditable="true"]';
	let seq = 0;
	const tag = () => document.querySelectorAll(SEL).forEach((el) => {
		if (!el.dataset.llmspellId) el.dataset.llmspellId = el.id || ('llmspell-' + (++seq));
	});
	const emit = (ev) => { try { if (w.` + emitBinding + `) w.` + emitBinding + `(ev); } catch (e) {} };
	const install = () => {
		tag();
		document.addEventListener('input', (ev) => {
			const el = ev.target && ev.target.closest ? ev.target.closest(SEL) : null;
			if (!el) return;
			if (!el.dataset.llmspellId) tag();
			emit({ type: 'input', field_id: el.dataset.llmspellId });
		}, true);
		document.addEventListener('click', (ev) => {
			const t = ev.target;
			let id = '';
			if (t && t.closest) {
				const o = t.closest('[id^="llm-spell-popup"]');
				id = o ? o.id : (t.id || '');
			}
			emit({ type: 'click', target: id });
		}, true);
		// Only element additions or removals that involve eligible fields
		// matter. Popup churn and text typed into contenteditable regions do
		// not, and bursts collapse into one event.
		const relevant = (n) => n.nodeType === 1 && !(n.id && n.id.startsWith('llm-spell-popup')) &&
			(n.matches(SEL) || n.querySelector(SEL) !== null);
		let pending = null;
		new MutationObserver((records) => {
			if (!records.some((r) => [...r.addedNodes, ...r.removedNodes].some(relevant))) return;
			tag();
			if (pending !== null) return;
			pending = setTimeout(() => { pending = null; emit({ type: 'mutation' }); }, ` + mutationDelayMS + `);
		}).observe(document.body || document.documentElement, { childList: true, subtree: true });
	};
	if (document.readyState === 'loading') {
		document.addEventListener('DOMContentLoaded', install);
	} else {
		install();
	}
	return true;
}`

// launchChrome starts a local Chrome and returns its DevTools URL and a
// func that kills it.
var launchChrome = func(headless bool) (string, func(), error) {
	l := launcher.New().Headless(headless)
	u, err := l.Launch()
	if err != nil {
		return "", nil, err
	}
	return u, l.Kill, nil
}

// OpenRod connects to (or launches) Chrome and wraps one tab. A browser it
// launched is killed again if anything after the launch fails.
func OpenRod(ctx context.Context, cfg RodConfig, logger *zap.Logger) (*RodDocument, error) {
	controlURL := cfg.ControlURL
	var kill func()
	if controlURL == "" {
		u, k, err := launchChrome(cfg.Headless)
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL, kill = u, k
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if kill != nil {
			kill()
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	// An attached browser belongs to the user and is never closed here.
	fail := func(err error) (*RodDocument, error) {
		if kill != nil {
			_ = browser.Close()
			kill()
		}
		return nil, err
	}

	p, err := pickPage(browser, cfg.URL)
	if err != nil {
		return fail(err)
	}
	doc, err := NewRodDocument(ctx, p, logger)
	if err != nil {
		return fail(err)
	}
	if kill != nil {
		doc.browser = browser
		doc.kill = kill
	}
	return doc, nil
}

func pickPage(browser *rod.Browser, url string) (*rod.Page, error) {
	if url != "" {
		p, err := browser.Page(proto.TargetCreateTarget{URL: url})
		if err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
		if err := p.WaitLoad(); err != nil {
			return nil, fmt.Errorf("wait for %s: %w", url, err)
		}
		return p, nil
	}

	pages, err := browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) == 0 {
		p, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
		return p, nil
	}
	return pages.First(), nil
}

// NewRodDocument installs the event hook into p and starts delivering its
// events.
func NewRodDocument(ctx context.Context, p *rod.Page, logger *zap.Logger) (*RodDocument, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &RodDocument{
		page:   p,
		logger: logger,
		known:  make(map[string]Kind),
		subs:   make(map[int]Handler),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}

	stop, err := p.Expose(emitBinding, d.onBinding)
	if err != nil {
		return nil, fmt.Errorf("expose event binding: %w", err)
	}
	d.stopExpose = stop

	remove, err := p.EvalOnNewDocument("(" + hookJS + ")()")
	if err != nil {
		_ = stop()
		return nil, fmt.Errorf("install hook for new documents: %w", err)
	}
	d.removeInit = remove

	if _, err := d.eval(ctx, hookJS); err != nil {
		_ = stop()
		_ = remove()
		return nil, fmt.Errorf("install hook: %w", err)
	}

	go d.dispatch()
	return d, nil
}

// Page returns the underlying Rod page.
func (d *RodDocument) Page() *rod.Page {
	return d.page
}

// Close stops event delivery. A browser launched by OpenRod is shut down;
// an attached one is left running.
func (d *RodDocument) Close() error {
	var errs []error
	d.once.Do(func() {
		close(d.done)
		if d.stopExpose != nil {
			errs = append(errs, d.stopExpose())
		}
		if d.removeInit != nil {
			errs = append(errs, d.removeInit())
		}
		if d.browser != nil {
			errs = append(errs, d.browser.Close())
		}
		if d.kill != nil {
			d.kill()
		}
	})
	return errors.Join(errs...)
}

func (d *RodDocument) onBinding(v gson.JSON) (interface{}, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		d.logger.Debug("PAGE_EVENT_DECODE_FAILED", zap.Error(err))
		return nil, nil
	}

	select {
	case d.events <- ev:
	case <-d.done:
	default:
		d.logger.Warn("PAGE_EVENT_DROPPED", zap.String("type", string(ev.Type)))
	}
	return nil, nil
}

// dispatch hands events to subscribers off the CDP event goroutine so
// handlers may call back into the page.
func (d *RodDocument) dispatch() {
	for {
		select {
		case <-d.done:
			return
		case ev := <-d.events:
			d.subMu.RLock()
			handlers := make([]Handler, 0, len(d.subs))
			for _, h := range d.subs {
				handlers = append(handlers, h)
			}
			d.subMu.RUnlock()
			for _, h := range handlers {
				h(ev)
			}
		}
	}
}

func (d *RodDocument) eval(ctx context.Context, js string, args ...interface{}) (gson.JSON, error) {
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return gson.JSON{}, fmt.Errorf("evaluate: %w", err)
	}
	if res == nil {
		return gson.JSON{}, errors.New("evaluate: empty result")
	}
	return res.Value, nil
}

func (d *RodDocument) evalInto(ctx context.Context, out interface{}, js string, args ...interface{}) error {
	v, err := d.eval(ctx, js, args...)
	if err != nil {
		return err
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (d *RodDocument) remember(id string, kind Kind) *rodField {
	d.mu.Lock()
	d.known[id] = kind
	d.mu.Unlock()
	return &rodField{doc: d, id: id, kind: kind}
}

// =============================================================================
// DOCUMENT INTERFACE
// =============================================================================

type fieldInfo struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}

// Fields lists eligible fields, tagging any the hook has not seen yet.
func (d *RodDocument) Fields(ctx context.Context) ([]Field, error) {
	var infos []fieldInfo
	err := d.evalInto(ctx, &infos, `() => {
		`+findJS+`
		let seq = document.querySelectorAll('[data-llmspell-id]').length;
		return Array.from(document.querySelectorAll('`+EligibleSelector+`')).map((el) => {
			if (!el.dataset.llmspellId) el.dataset.llmspellId = el.id || ('llmspell-x' + (++seq));
			return { id: el.dataset.llmspellId, kind: kindOf(el) };
		});
	}`)
	if err != nil {
		return nil, err
	}
	out := make([]Field, 0, len(infos))
	for _, fi := range infos {
		out = append(out, d.remember(fi.ID, fi.Kind))
	}
	return out, nil
}

// Lookup returns a field seen by Fields or Focused.
func (d *RodDocument) Lookup(id string) (Field, bool) {
	d.mu.RLock()
	kind, ok := d.known[id]
	d.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &rodField{doc: d, id: id, kind: kind}, true
}

// Focused returns the active element if it is an eligible field.
func (d *RodDocument) Focused(ctx context.Context) (Field, error) {
	v, err := d.eval(ctx, `() => {
		`+findJS+`
		const el = document.activeElement;
		if (!el || !el.matches || !el.matches('`+EligibleSelector+`')) return null;
		if (!el.dataset.llmspellId) el.dataset.llmspellId = el.id || ('llmspell-f' + Date.now());
		return { id: el.dataset.llmspellId, kind: kindOf(el) };
	}`)
	if err != nil {
		return nil, err
	}
	if v.Nil() {
		return nil, ErrNoFocusedField
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var fi fieldInfo
	if err := json.Unmarshal(raw, &fi); err != nil {
		return nil, fmt.Errorf("decode focused field: %w", err)
	}
	return d.remember(fi.ID, fi.Kind), nil
}

// Selection returns the field's selection in characters.
func (d *RodDocument) Selection(ctx context.Context, id string) (Selection, error) {
	var sel *Selection
	err := d.evalInto(ctx, &sel, `(id) => {
		`+findJS+`
		const el = find(id);
		if (!el) return null;
		const cp = (str, n) => Array.from(str.slice(0, n)).length;
		if (el.isContentEditable) {
			const s = window.getSelection();
			if (!s.rangeCount || !el.contains(s.anchorNode)) return { start: 0, end: 0 };
			const r = s.getRangeAt(0);
			const pre = r.cloneRange();
			pre.selectNodeContents(el);
			pre.setEnd(r.startContainer, r.startOffset);
			const before = pre.toString();
			const start = Array.from(before).length;
			return { start, end: start + Array.from(r.toString()).length };
		}
		const v = el.value;
		const st = el.selectionStart == null ? v.length : el.selectionStart;
		const en = el.selectionEnd == null ? st : el.selectionEnd;
		return { start: cp(v, st), end: cp(v, en) };
	}`, id)
	if err != nil {
		return Selection{}, err
	}
	if sel == nil {
		return Selection{}, fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	return *sel, nil
}

// SetText writes the value and dispatches an input event, which the hook
// reports back like any user edit.
func (d *RodDocument) SetText(ctx context.Context, id, text string) error {
	return d.boolCall(ctx, id, `(id, text) => {
		`+findJS+`
		const el = find(id);
		if (!el) return false;
		if (el.isContentEditable) { el.innerText = text; } else { el.value = text; }
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;
	}`, id, text)
}

// ReplaceSelection swaps the selected range for text in plain fields and
// contenteditable regions, leaving the caret after the insertion.
func (d *RodDocument) ReplaceSelection(ctx context.Context, id, text string) error {
	return d.boolCall(ctx, id, `(id, text) => {
		`+findJS+`
		const el = find(id);
		if (!el) return false;
		if (el.isContentEditable) {
			el.focus();
			const s = window.getSelection();
			if (!s.rangeCount) return false;
			const r = s.getRangeAt(0);
			r.deleteContents();
			const node = document.createTextNode(text);
			r.insertNode(node);
			r.setStartAfter(node);
			r.collapse(true);
			s.removeAllRanges();
			s.addRange(r);
		} else {
			const v = el.value;
			const st = el.selectionStart == null ? v.length : el.selectionStart;
			const en = el.selectionEnd == null ? st : el.selectionEnd;
			el.value = v.slice(0, st) + text + v.slice(en);
			const caret = st + text.length;
			el.setSelectionRange(caret, caret);
		}
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;
	}`, id, text)
}

// Scroll returns the window scroll offset.
func (d *RodDocument) Scroll(ctx context.Context) (Scroll, error) {
	var s Scroll
	err := d.evalInto(ctx, &s, `() => ({ x: window.scrollX, y: window.scrollY })`)
	return s, err
}

// Subscribe registers h for all events.
func (d *RodDocument) Subscribe(h Handler) func() {
	d.subMu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = h
	d.subMu.Unlock()

	return func() {
		d.subMu.Lock()
		delete(d.subs, id)
		d.subMu.Unlock()
	}
}

// ShowOverlay draws the suggestion box, adding the popup stylesheet on
// first use. Text goes in through textContent, never as markup.
func (d *RodDocument) ShowOverlay(ctx context.Context, o Overlay) error {
	_, err := d.eval(ctx, `(o, styleID, css) => {
		if (!document.getElementById(styleID)) {
			const st = document.createElement('style');
			st.id = styleID;
			st.textContent = css;
			document.head.appendChild(st);
		}
		const old = document.getElementById(o.id);
		if (old) old.remove();
		const box = document.createElement('div');
		box.id = o.id;
		box.className = 'llm-spell-popup';
		const row = document.createElement('div');
		row.className = 'llm-spell-suggestion';
		const span = (cls, text) => { const s = document.createElement('span'); s.className = cls; s.textContent = text; return s; };
		row.append(span('original-text', o.original), span('arrow', ' → '), span('corrected-text', o.corrected));
		const actions = document.createElement('div');
		actions.className = 'llm-spell-actions';
		const btn = (id, cls, label) => { const b = document.createElement('button'); b.id = id; b.className = cls; b.textContent = label; return b; };
		actions.append(btn(o.apply_id, 'apply-btn', 'Apply'), btn(o.ignore_id, 'ignore-btn', 'Ignore'));
		box.append(row, actions);
		box.style.position = 'absolute';
		box.style.left = o.left + 'px';
		box.style.top = o.top + 'px';
		box.style.zIndex = String(o.z_index);
		document.body.appendChild(box);
		return true;
	}`, o, styles.PopupStyleID, styles.PopupCSS())
	return err
}

// RemoveOverlay removes the overlay element, if present.
func (d *RodDocument) RemoveOverlay(ctx context.Context, id string) error {
	_, err := d.eval(ctx, `(id) => { const el = document.getElementById(id); if (el) el.remove(); return true; }`, id)
	return err
}

func (d *RodDocument) boolCall(ctx context.Context, id, js string, args ...interface{}) error {
	v, err := d.eval(ctx, js, args...)
	if err != nil {
		return err
	}
	if !v.Bool() {
		return fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	return nil
}

// =============================================================================
// ROD FIELD
// =============================================================================

type rodField struct {
	doc  *RodDocument
	id   string
	kind Kind
}

func (f *rodField) ID() string { return f.id }

func (f *rodField) Kind() Kind { return f.kind }

func (f *rodField) Value(ctx context.Context) (string, error) {
	v, err := f.doc.eval(ctx, `(id) => {
		`+findJS+`
		const el = find(id);
		return el ? valueOf(el) : null;
	}`, f.id)
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, f.id)
	}
	return v.Str(), nil
}

func (f *rodField) SetValue(ctx context.Context, val string) error {
	return f.doc.boolCall(ctx, f.id, `(id, v) => {
		`+findJS+`
		const el = find(id);
		if (!el) return false;
		if (el.isContentEditable) { el.innerText = v; } else { el.value = v; }
		return true;
	}`, f.id, val)
}

func (f *rodField) Rect(ctx context.Context) (Rect, error) {
	var r *Rect
	err := f.doc.evalInto(ctx, &r, `(id) => {
		`+findJS+`
		const el = find(id);
		if (!el) return null;
		const b = el.getBoundingClientRect();
		return { left: b.left, top: b.top, right: b.right, bottom: b.bottom };
	}`, f.id)
	if err != nil {
		return Rect{}, err
	}
	if r == nil {
		return Rect{}, fmt.Errorf("%w: %s", ErrUnknownField, f.id)
	}
	return *r, nil
}
