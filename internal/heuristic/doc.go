// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package heuristic decides whether a typed token is worth sending to the
// language model at all.
//
// The gate is a cheap, false-positive-tolerant pre-filter. It never touches
// the network and makes no promise about recall or precision; the model
// arbitrates correctness.
//
// A token passes when:
//   - it is between 3 and 100 characters long,
//   - it does not look like a URL, an email-like token, or code
//     (brackets, braces, parentheses),
//   - and it shows an anomaly: three identical characters in a row, or a
//     run of five consecutive non-vowels.
//
// # Usage
//
//	if heuristic.LikelyHasErrors(word) {
//	    corrected := corrector.CorrectWord(ctx, word)
//	}
package heuristic
