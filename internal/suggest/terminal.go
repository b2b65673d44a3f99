// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package suggest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/llmspell/internal/page"
	"github.com/jeranaias/llmspell/internal/ui/styles"
)

// =============================================================================
// TERMINAL RENDERER
// =============================================================================

// TerminalRenderer prints suggestions as boxes on a terminal.
type TerminalRenderer struct {
	mu sync.Mutex
	w  io.Writer

	box       lipgloss.Style
	original  lipgloss.Style
	arrow     lipgloss.Style
	corrected lipgloss.Style
	hint      lipgloss.Style
}

// NewTerminalRenderer creates a renderer writing to w.
func NewTerminalRenderer(w io.Writer) *TerminalRenderer {
	return &TerminalRenderer{
		w: w,
		box: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(styles.Overlay).
			Padding(0, 1),
		original:  lipgloss.NewStyle().Foreground(styles.Rose).Strikethrough(true),
		arrow:     lipgloss.NewStyle().Foreground(styles.TextMuted),
		corrected: lipgloss.NewStyle().Foreground(styles.Emerald).Bold(true),
		hint:      lipgloss.NewStyle().Foreground(styles.TextMuted),
	}
}

// Render returns the box for o without printing it.
func (r *TerminalRenderer) Render(o page.Overlay) string {
	line := lipgloss.JoinHorizontal(lipgloss.Top,
		r.original.Render(o.Original),
		r.arrow.Render(" → "),
		r.corrected.Render(o.Corrected),
	)
	hint := r.hint.Render("[a]pply  [i]gnore")
	return r.box.Render(lipgloss.JoinVertical(lipgloss.Left, line, hint))
}

// ShowOverlay prints the suggestion box.
func (r *TerminalRenderer) ShowOverlay(ctx context.Context, o page.Overlay) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintln(r.w, r.Render(o))
	return err
}

// RemoveOverlay is a no-op: printed output stays in the scrollback.
func (r *TerminalRenderer) RemoveOverlay(ctx context.Context, id string) error {
	return nil
}
