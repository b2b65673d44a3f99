// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package suggest shows spelling suggestions next to the edited field and
// applies them on request.
//
// At most one popup exists per document. Showing a new one tears down the
// previous one first. The popup offers Apply (replace the first occurrence
// of the original text in the field) and Ignore (close, no change). After a
// short grace delay the first click outside the popup closes it as well.
//
// # Key Types
//
//   - Manager: the singleton popup and its click handling
//   - Renderer: where overlays are drawn (the document, a terminal)
//   - TerminalRenderer: lipgloss rendering for the CLI
//
// # Usage
//
//	m := suggest.NewManager(doc, suggest.WithLogger(logger))
//	m.Start(ctx)
//	defer m.Close()
//	m.Show(ctx, field, "helllo", "hello", rect)
package suggest
