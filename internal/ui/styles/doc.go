// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles defines the llmspell color palette.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. The same palette styles the browser suggestion popup through
PopupCSS, so a suggestion looks alike in the terminal and in Chrome.

# Colors

  - Cyan: Brand color, prompts and headers
  - Emerald: Success and corrected text
  - Rose: Errors and the misspelled original
  - Amber: Warnings
  - Surface, Overlay, OverlayDim: Backgrounds and borders
  - TextPrimary, TextMuted, TextInverse: Text hierarchy

# Usage

	header := lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)

	// In the page, once per document
	css := styles.PopupCSS()
*/
package styles
