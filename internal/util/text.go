// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "unicode/utf8"

// Ellipsis is appended by TruncateRunes.
const Ellipsis = "..."

// TruncateRunes shortens s to at most maxRunes runes, ending in Ellipsis
// when anything was cut. It never splits a multi-byte character.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	if maxRunes <= len(Ellipsis) {
		return string([]rune(s)[:maxRunes])
	}
	return string([]rune(s)[:maxRunes-len(Ellipsis)]) + Ellipsis
}
