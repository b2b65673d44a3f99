// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package field

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/llmspell/internal/page"
)

// rendererBuffer bounds overlay messages waiting for the event loop.
const rendererBuffer = 64

// OverlayMsg carries a suggestion popup into the program.
type OverlayMsg struct {
	Overlay page.Overlay
}

// OverlayClosedMsg reports that the popup with ID was removed.
type OverlayClosedMsg struct {
	ID string
}

// Renderer forwards popup changes from the suggestion manager to the
// program. Sends never block: the manager may call it from inside Update
// (apply and ignore remove the popup) as well as from check goroutines.
type Renderer struct {
	events chan tea.Msg
}

// NewRenderer creates a renderer. Pass it to suggest.WithRenderer.
func NewRenderer() *Renderer {
	return &Renderer{events: make(chan tea.Msg, rendererBuffer)}
}

// ShowOverlay implements suggest.Renderer.
func (r *Renderer) ShowOverlay(ctx context.Context, o page.Overlay) error {
	r.send(OverlayMsg{Overlay: o})
	return nil
}

// RemoveOverlay implements suggest.Renderer.
func (r *Renderer) RemoveOverlay(ctx context.Context, id string) error {
	r.send(OverlayClosedMsg{ID: id})
	return nil
}

func (r *Renderer) send(msg tea.Msg) {
	select {
	case r.events <- msg:
	default:
	}
}

// Wait returns a command that delivers the next popup change.
func (r *Renderer) Wait() tea.Cmd {
	return func() tea.Msg {
		return <-r.events
	}
}
