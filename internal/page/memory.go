// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package page

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// MEMORY DOCUMENT
// =============================================================================

// MemoryDocument is an in-process Document. It backs the demo command and
// the tests, and doubles as the state of a remote page mirrored over the
// WebSocket bridge. Offsets are counted in characters.
type MemoryDocument struct {
	mu       sync.Mutex
	fields   map[string]*memoryField
	order    []string
	focused  string
	scroll   Scroll
	overlays map[string]Overlay

	subMu  sync.RWMutex
	subs   map[int]Handler
	nextID int
}

type memoryField struct {
	doc  *MemoryDocument
	id   string
	kind Kind

	// Guarded by doc.mu.
	value []rune
	sel   Selection
	rect  Rect
}

// NewMemoryDocument creates an empty document.
func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{
		fields:   make(map[string]*memoryField),
		overlays: make(map[string]Overlay),
		subs:     make(map[int]Handler),
	}
}

// AddField inserts a field and raises a mutation event. Adding an existing
// id returns the existing field.
func (d *MemoryDocument) AddField(id string, kind Kind, rect Rect) Field {
	d.mu.Lock()
	if f, ok := d.fields[id]; ok {
		d.mu.Unlock()
		return f
	}
	f := &memoryField{doc: d, id: id, kind: kind, rect: rect}
	d.fields[id] = f
	d.order = append(d.order, id)
	d.mu.Unlock()

	d.emit(Event{Type: EventMutation})
	return f
}

// RemoveField deletes a field and raises a mutation event.
func (d *MemoryDocument) RemoveField(id string) {
	d.mu.Lock()
	if _, ok := d.fields[id]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.fields, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	if d.focused == id {
		d.focused = ""
	}
	d.mu.Unlock()

	d.emit(Event{Type: EventMutation})
}

// Focus focuses a field. An empty id blurs.
func (d *MemoryDocument) Focus(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id != "" {
		if _, ok := d.fields[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, id)
		}
	}
	d.focused = id
	return nil
}

// Select sets a field's selection range, clamped to its value.
func (d *MemoryDocument) Select(id string, start, end int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fields[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	f.sel = clampSelection(Selection{Start: start, End: end}, len(f.value))
	return nil
}

// SetScroll sets the scroll offset.
func (d *MemoryDocument) SetScroll(x, y float64) {
	d.mu.Lock()
	d.scroll = Scroll{X: x, Y: y}
	d.mu.Unlock()
}

// TypeText appends s to the field one character at a time, as a user would,
// raising an input event per character. The caret ends after the text.
func (d *MemoryDocument) TypeText(id, s string) error {
	for _, r := range s {
		d.mu.Lock()
		f, ok := d.fields[id]
		if !ok {
			d.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownField, id)
		}
		f.value = append(f.value, r)
		n := len(f.value)
		f.sel = Selection{Start: n, End: n}
		d.mu.Unlock()

		d.emit(Event{Type: EventInput, FieldID: id})
	}
	return nil
}

// Click raises a click event on the element with the given id. An empty
// target is a click on the page background.
func (d *MemoryDocument) Click(target string) {
	d.emit(Event{Type: EventClick, Target: target})
}

// Overlay returns the overlay currently shown under id.
func (d *MemoryDocument) Overlay(id string) (Overlay, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.overlays[id]
	return o, ok
}

// OverlayCount returns how many overlays are shown.
func (d *MemoryDocument) OverlayCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.overlays)
}

// =============================================================================
// DOCUMENT INTERFACE
// =============================================================================

// Fields returns the fields in insertion order.
func (d *MemoryDocument) Fields(ctx context.Context) ([]Field, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Field, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.fields[id])
	}
	return out, nil
}

// Lookup returns the field with the given id.
func (d *MemoryDocument) Lookup(id string) (Field, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fields[id]
	if !ok {
		return nil, false
	}
	return f, true
}

// Focused returns the focused field.
func (d *MemoryDocument) Focused(ctx context.Context) (Field, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.focused == "" {
		return nil, ErrNoFocusedField
	}
	f, ok := d.fields[d.focused]
	if !ok {
		return nil, ErrNoFocusedField
	}
	return f, nil
}

// Selection returns the field's selection.
func (d *MemoryDocument) Selection(ctx context.Context, id string) (Selection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fields[id]
	if !ok {
		return Selection{}, fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	return f.sel, nil
}

// SetText replaces the value, moves the caret to the end and raises an
// input event.
func (d *MemoryDocument) SetText(ctx context.Context, id, text string) error {
	d.mu.Lock()
	f, ok := d.fields[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	f.value = []rune(text)
	n := len(f.value)
	f.sel = Selection{Start: n, End: n}
	d.mu.Unlock()

	d.emit(Event{Type: EventInput, FieldID: id})
	return nil
}

// ReplaceSelection swaps the selected range for text and collapses the
// selection to a caret just after it.
func (d *MemoryDocument) ReplaceSelection(ctx context.Context, id, text string) error {
	d.mu.Lock()
	f, ok := d.fields[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	sel := clampSelection(f.sel, len(f.value))
	ins := []rune(text)

	next := make([]rune, 0, len(f.value)-(sel.End-sel.Start)+len(ins))
	next = append(next, f.value[:sel.Start]...)
	next = append(next, ins...)
	next = append(next, f.value[sel.End:]...)
	f.value = next

	caret := sel.Start + len(ins)
	f.sel = Selection{Start: caret, End: caret}
	d.mu.Unlock()

	d.emit(Event{Type: EventInput, FieldID: id})
	return nil
}

// Scroll returns the scroll offset.
func (d *MemoryDocument) Scroll(ctx context.Context) (Scroll, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scroll, nil
}

// Subscribe registers h for all events.
func (d *MemoryDocument) Subscribe(h Handler) func() {
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

// ShowOverlay records o, replacing any overlay with the same id.
func (d *MemoryDocument) ShowOverlay(ctx context.Context, o Overlay) error {
	d.mu.Lock()
	d.overlays[o.ID] = o
	d.mu.Unlock()
	return nil
}

// RemoveOverlay removes the overlay with the given id, if shown.
func (d *MemoryDocument) RemoveOverlay(ctx context.Context, id string) error {
	d.mu.Lock()
	delete(d.overlays, id)
	d.mu.Unlock()
	return nil
}

// emit delivers ev to every subscriber, in subscription order, outside the
// document lock so handlers may call back into the document.
func (d *MemoryDocument) emit(ev Event) {
	d.subMu.RLock()
	ids := make([]int, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, d.subs[id])
	}
	d.subMu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// =============================================================================
// MEMORY FIELD
// =============================================================================

func (f *memoryField) ID() string { return f.id }

func (f *memoryField) Kind() Kind { return f.kind }

func (f *memoryField) Value(ctx context.Context) (string, error) {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	return string(f.value), nil
}

func (f *memoryField) SetValue(ctx context.Context, v string) error {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	f.value = []rune(v)
	f.sel = clampSelection(f.sel, len(f.value))
	return nil
}

func (f *memoryField) Rect(ctx context.Context) (Rect, error) {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	return f.rect, nil
}

func clampSelection(s Selection, n int) Selection {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > n {
			return n
		}
		return v
	}
	s.Start, s.End = clamp(s.Start), clamp(s.End)
	if s.Start > s.End {
		s.Start, s.End = s.End, s.Start
	}
	return s
}
