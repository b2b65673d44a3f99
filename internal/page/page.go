// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package page

import (
	"context"
	"errors"
)

// ErrNoFocusedField is returned when an operation needs the focused editable
// field and there is none.
var ErrNoFocusedField = errors.New("no focused editable field")

// ErrUnknownField is returned for a field id the document does not know.
var ErrUnknownField = errors.New("unknown field")

// EligibleSelector matches the fields the spell checker attaches to.
const EligibleSelector = `input[type="text"], textarea, [contenteditable="true"]`

// =============================================================================
// FIELD TYPES
// =============================================================================

// Kind is the type of an editable field.
type Kind string

const (
	KindInput           Kind = "input"
	KindTextArea        Kind = "textarea"
	KindContentEditable Kind = "contenteditable"
)

// Rect is a bounding box in viewport coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns the rectangle's width.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the rectangle's height.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Scroll is the document's scroll offset.
type Scroll struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Selection is a character range within a field's value. Start == End is a
// caret with nothing selected.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool { return s.Start == s.End }

// Field is one editable element.
type Field interface {
	ID() string
	Kind() Kind
	Value(ctx context.Context) (string, error)

	// SetValue writes the value without raising an input event.
	SetValue(ctx context.Context, v string) error

	Rect(ctx context.Context) (Rect, error)
}

// =============================================================================
// EVENTS
// =============================================================================

// EventType names a document event.
type EventType string

const (
	// EventInput fires after a field's value changed through user input or
	// a notifying write.
	EventInput EventType = "input"

	// EventMutation fires when elements were added to or removed from the
	// document.
	EventMutation EventType = "mutation"

	// EventClick fires for every click anywhere in the document.
	EventClick EventType = "click"
)

// Event is something observed in the document.
type Event struct {
	Type EventType `json:"type"`

	// FieldID is set for input events.
	FieldID string `json:"field_id,omitempty"`

	// Target is the id of the clicked element, or of its closest ancestor
	// belonging to an overlay.
	Target string `json:"target,omitempty"`
}

// Handler receives document events.
type Handler func(Event)

// =============================================================================
// OVERLAY
// =============================================================================

// Overlay is a suggestion box positioned in document coordinates.
type Overlay struct {
	ID        string  `json:"id"`
	Original  string  `json:"original"`
	Corrected string  `json:"corrected"`
	Left      float64 `json:"left"`
	Top       float64 `json:"top"`
	ZIndex    int     `json:"z_index"`
	ApplyID   string  `json:"apply_id"`
	IgnoreID  string  `json:"ignore_id"`
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is the page the spell checker works on.
type Document interface {
	// Fields returns every eligible editable field currently present.
	Fields(ctx context.Context) ([]Field, error)

	// Lookup returns the field with the given id.
	Lookup(id string) (Field, bool)

	// Focused returns the focused editable field or ErrNoFocusedField.
	Focused(ctx context.Context) (Field, error)

	// Selection returns the field's current selection.
	Selection(ctx context.Context, id string) (Selection, error)

	// SetText replaces the whole value and raises an input event.
	SetText(ctx context.Context, id, text string) error

	// ReplaceSelection replaces only the selected range, puts the caret
	// right after the inserted text and raises an input event.
	ReplaceSelection(ctx context.Context, id, text string) error

	Scroll(ctx context.Context) (Scroll, error)

	// Subscribe registers h for every event and returns a function that
	// removes it.
	Subscribe(h Handler) (cancel func())

	ShowOverlay(ctx context.Context, o Overlay) error
	RemoveOverlay(ctx context.Context, id string) error
}
