// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PopupStyleID is the element id of the injected popup stylesheet.
const PopupStyleID = "llm-spell-style"

// PopupCSS returns the stylesheet for the browser suggestion popup, built
// from the same palette as the terminal. Dark variants apply under
// prefers-color-scheme: dark.
func PopupCSS() string {
	var b strings.Builder
	b.WriteString(popupRules(func(c lipgloss.AdaptiveColor) string { return c.Light }))
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString(popupRules(func(c lipgloss.AdaptiveColor) string { return c.Dark }))
	b.WriteString("}\n")
	return b.String()
}

func popupRules(pick func(lipgloss.AdaptiveColor) string) string {
	return fmt.Sprintf(`.llm-spell-popup { background: %s; color: %s; border: 1px solid %s; border-radius: 6px; padding: 6px 10px; font: 13px system-ui, sans-serif; box-shadow: 0 2px 8px rgba(0,0,0,.2); }
.llm-spell-popup .original-text { color: %s; text-decoration: line-through; }
.llm-spell-popup .arrow { color: %s; }
.llm-spell-popup .corrected-text { color: %s; font-weight: 600; }
.llm-spell-popup .llm-spell-actions { margin-top: 6px; display: flex; gap: 6px; }
.llm-spell-popup button { border: 0; border-radius: 4px; padding: 2px 10px; cursor: pointer; font: inherit; }
.llm-spell-popup .apply-btn { background: %s; color: %s; }
.llm-spell-popup .ignore-btn { background: %s; color: %s; }
`,
		pick(Surface), pick(TextPrimary), pick(OverlayDim),
		pick(Rose),
		pick(TextMuted),
		pick(Emerald),
		pick(Emerald), pick(TextInverse),
		pick(Overlay), pick(TextPrimary),
	)
}
