// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package page

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestMemoryDocument_TypeTextEmitsPerCharacter(t *testing.T) {
	doc := NewMemoryDocument()
	doc.AddField("f", KindInput, Rect{})

	var events []Event
	cancel := doc.Subscribe(func(ev Event) { events = append(events, ev) })
	defer cancel()

	require.NoError(t, doc.TypeText("f", "héllo"))

	f, ok := doc.Lookup("f")
	require.True(t, ok)
	v, _ := f.Value(ctx)
	assert.Equal(t, "héllo", v)
	assert.Len(t, events, 5)
	for _, ev := range events {
		assert.Equal(t, Event{Type: EventInput, FieldID: "f"}, ev)
	}

	sel, err := doc.Selection(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, Selection{Start: 5, End: 5}, sel)
}

func TestMemoryDocument_AddFieldEmitsMutation(t *testing.T) {
	doc := NewMemoryDocument()
	var got []EventType
	doc.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	doc.AddField("a", KindTextArea, Rect{})
	doc.AddField("a", KindTextArea, Rect{})
	doc.RemoveField("a")
	doc.RemoveField("a")

	assert.Equal(t, []EventType{EventMutation, EventMutation}, got)
}

func TestMemoryDocument_Unsubscribe(t *testing.T) {
	doc := NewMemoryDocument()
	doc.AddField("f", KindInput, Rect{})

	n := 0
	cancel := doc.Subscribe(func(Event) { n++ })
	doc.Click("")
	cancel()
	doc.Click("")
	assert.Equal(t, 1, n)
}

func TestMemoryDocument_FocusedNone(t *testing.T) {
	doc := NewMemoryDocument()
	doc.AddField("f", KindInput, Rect{})

	_, err := doc.Focused(ctx)
	assert.True(t, errors.Is(err, ErrNoFocusedField))

	require.NoError(t, doc.Focus("f"))
	f, err := doc.Focused(ctx)
	require.NoError(t, err)
	assert.Equal(t, "f", f.ID())

	doc.RemoveField("f")
	_, err = doc.Focused(ctx)
	assert.ErrorIs(t, err, ErrNoFocusedField)

	assert.ErrorIs(t, doc.Focus("missing"), ErrUnknownField)
}

func TestMemoryDocument_SetValueIsSilent(t *testing.T) {
	doc := NewMemoryDocument()
	f := doc.AddField("f", KindInput, Rect{})

	n := 0
	doc.Subscribe(func(Event) { n++ })
	require.NoError(t, f.SetValue(ctx, "quiet"))
	assert.Equal(t, 0, n)

	require.NoError(t, doc.SetText(ctx, "f", "loud"))
	assert.Equal(t, 1, n)
	v, _ := f.Value(ctx)
	assert.Equal(t, "loud", v)
}

func TestMemoryDocument_ReplaceSelection(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		start, end int
		insert     string
		want       string
		caret      int
	}{
		{"middle", "the qiuck fox", 4, 9, "quick", "the quick fox", 9},
		{"caret only inserts", "ab", 1, 1, "X", "aXb", 2},
		{"whole value", "wrold", 0, 5, "world", "world", 5},
		{"reversed range", "wrold", 5, 0, "world", "world", 5},
		{"multibyte", "café crème", 5, 10, "creme", "café creme", 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := NewMemoryDocument()
			f := doc.AddField("f", KindContentEditable, Rect{})
			require.NoError(t, f.SetValue(ctx, tc.value))
			require.NoError(t, doc.Select("f", tc.start, tc.end))

			inputs := 0
			doc.Subscribe(func(ev Event) {
				if ev.Type == EventInput {
					inputs++
				}
			})

			require.NoError(t, doc.ReplaceSelection(ctx, "f", tc.insert))

			v, _ := f.Value(ctx)
			assert.Equal(t, tc.want, v)
			sel, _ := doc.Selection(ctx, "f")
			assert.Equal(t, Selection{Start: tc.caret, End: tc.caret}, sel)
			assert.Equal(t, 1, inputs)
		})
	}
}

func TestMemoryDocument_UnknownField(t *testing.T) {
	doc := NewMemoryDocument()
	assert.ErrorIs(t, doc.SetText(ctx, "nope", "x"), ErrUnknownField)
	assert.ErrorIs(t, doc.ReplaceSelection(ctx, "nope", "x"), ErrUnknownField)
	assert.ErrorIs(t, doc.TypeText("nope", "x"), ErrUnknownField)
	_, err := doc.Selection(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestMemoryDocument_Overlays(t *testing.T) {
	doc := NewMemoryDocument()
	o := Overlay{ID: "llm-spell-popup", Original: "helllo", Corrected: "hello"}

	require.NoError(t, doc.ShowOverlay(ctx, o))
	require.NoError(t, doc.ShowOverlay(ctx, o))
	assert.Equal(t, 1, doc.OverlayCount())

	got, ok := doc.Overlay("llm-spell-popup")
	require.True(t, ok)
	assert.Equal(t, "hello", got.Corrected)

	require.NoError(t, doc.RemoveOverlay(ctx, "llm-spell-popup"))
	assert.Equal(t, 0, doc.OverlayCount())
}

func TestMemoryDocument_FieldsInOrder(t *testing.T) {
	doc := NewMemoryDocument()
	doc.AddField("b", KindInput, Rect{})
	doc.AddField("a", KindTextArea, Rect{})

	fields, err := doc.Fields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "b", fields[0].ID())
	assert.Equal(t, KindTextArea, fields[1].Kind())
}

func TestRect_Size(t *testing.T) {
	r := Rect{Left: 10, Top: 20, Right: 110, Bottom: 50}
	assert.Equal(t, 100.0, r.Width())
	assert.Equal(t, 30.0, r.Height())
	assert.True(t, Selection{Start: 3, End: 3}.Empty())
}
