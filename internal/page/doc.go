// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package page is the boundary between the spell checker and the document it
// edits.
//
// Nothing above this package touches a DOM directly. Input, click and
// mutation notifications arrive as Events through Subscribe; reads and
// writes go through the Document and Field interfaces.
//
// # Key Types
//
//   - Document: fields, focus, selection, overlays and events
//   - Field: one editable element (text input, textarea, contenteditable)
//   - MemoryDocument: in-process implementation for the demo and tests
//   - RodDocument: a live Chrome tab driven over the DevTools protocol
//
// # Usage
//
//	doc := page.NewMemoryDocument()
//	doc.AddField("comment", page.KindTextArea, page.Rect{Left: 10, Top: 20, Right: 310, Bottom: 60})
//	doc.Focus("comment")
//	doc.TypeText("comment", "helllo ")
//
// Attaching to a browser:
//
//	doc, err := page.OpenRod(ctx, page.RodConfig{ControlURL: wsURL}, logger)
//	defer doc.Close()
package page
