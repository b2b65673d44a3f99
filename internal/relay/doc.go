// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay carries typed requests between the three agents of the
// spell checker: the background agent (the only one that reaches the model
// service), the page agent (reads and writes the focused field) and the
// popup agent (status indicator and text task buttons).
//
// Requests and replies are JSON over a bus.MessageBus. Each request gets at
// most one reply, and failures travel inside the reply as result variants
// instead of errors: a processText failure is {success:false, error}, an
// unreachable model is {status:"offline"} and getText with nothing focused
// is {text:null}.
//
// # Key Types
//
//   - Request: the request envelope
//   - BackgroundAgent, PageAgent: request handlers
//   - PopupAgent: the control surface, a client of the other two
//   - Client: typed calls over the bus
//
// # Usage
//
//	b := bus.NewMemoryBus()
//	pages := relay.NewClient(b, 0)
//	relay.Serve(ctx, b, relay.SubjectBackground, relay.NewBackgroundAgent(client, corrector, pages, logger), logger)
//	relay.Serve(ctx, b, relay.SubjectPage, relay.NewPageAgent(doc, logger), logger)
//	out, err := relay.NewPopupAgent(pages).Run(ctx, "correct")
package relay
