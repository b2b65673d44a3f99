// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"strings"
	"unicode/utf8"
)

// preambleLabels are lead-ins small models like to put before the answer.
// Longer labels come first so a label is never cut short by its own prefix.
var preambleLabels = []string{
	"Here's the corrected text:",
	"Here is the corrected text:",
	"Here is the rephrased text:",
	"Here is the improved prompt:",
	"Corrected text:",
	"Rephrased text:",
	"Improved prompt:",
	"Corrected:",
	"Rephrased:",
	"Improved:",
	"Output:",
	"Result:",
}

// quotePairs are the opening/closing marks stripped from a fully quoted reply.
var quotePairs = [][2]rune{
	{'"', '"'},
	{'\'', '\''},
	{'“', '”'}, // “ ”
	{'‘', '’'}, // ‘ ’
}

// CleanResponse trims a full-text reply, removes any leading preamble labels
// (case-insensitive) and then one layer of surrounding quotes when the whole
// reply is quoted. Already clean text is returned unchanged.
func CleanResponse(s string) string {
	s = strings.TrimSpace(s)

	for {
		stripped := stripLabel(s)
		if stripped == s {
			break
		}
		s = stripped
	}

	return unquote(s)
}

func stripLabel(s string) string {
	for _, label := range preambleLabels {
		if len(s) >= len(label) && strings.EqualFold(s[:len(label)], label) {
			return strings.TrimSpace(s[len(label):])
		}
	}
	return s
}

func unquote(s string) string {
	first, fw := utf8.DecodeRuneInString(s)
	last, lw := utf8.DecodeLastRuneInString(s)
	if len(s) < fw+lw {
		return s
	}
	for _, p := range quotePairs {
		if first == p[0] && last == p[1] {
			return strings.TrimSpace(s[fw : len(s)-lw])
		}
	}
	return s
}
