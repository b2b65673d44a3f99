// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package trigger runs the spell-check pipeline on a document.
//
// Each attached field gets its own debounce timer. When the user pauses,
// the last word of the field goes through the heuristic gate, then the
// corrector (cache first, model on a miss). A correction that differs from
// the word, ignoring case, is offered through the suggester.
//
// Every input event bumps a per-field generation counter. A check whose
// reply arrives after newer input is discarded instead of shown.
//
// # Usage
//
//	p := trigger.New(doc, gate, corrector, popups, trigger.Config{Delay: time.Second})
//	if err := p.Start(ctx); err != nil {
//	    return err
//	}
//	defer p.Stop()
package trigger
