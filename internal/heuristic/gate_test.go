// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package heuristic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// LENGTH BOUNDS
// =============================================================================

func TestLikelyHasErrors_LengthBounds(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"one char", "x"},
		{"two repeated", "zz"},
		{"just over max", strings.Repeat("a", 101)},
		{"far over max", strings.Repeat("xqrtz", 40)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, LikelyHasErrors(tc.input))
		})
	}
}

func TestLikelyHasErrors_BoundaryLengthsAccepted(t *testing.T) {
	assert.True(t, LikelyHasErrors("aaa"), "exactly 3 characters with a repeat should pass")
	assert.True(t, LikelyHasErrors(strings.Repeat("a", 100)), "exactly 100 characters should pass")
}

func TestLikelyHasErrors_CountsCharactersNotBytes(t *testing.T) {
	// Three runes, six bytes.
	assert.True(t, LikelyHasErrors("ééé"))
	// Two runes, four bytes: still too short.
	assert.False(t, LikelyHasErrors("éé"))
}

// =============================================================================
// NON-PROSE SHAPES
// =============================================================================

func TestLikelyHasErrors_RejectsNonProse(t *testing.T) {
	tests := []string{
		"http://xxxxx.example",
		"https://wwwwww.test",
		"someone@mailllll.com",
		"@mmmmm",
		"fooo(bar)",
		"arrrray[0]",
		"{zzzzz}",
		"xqrtz)",
		"]xqrtz",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			assert.False(t, LikelyHasErrors(input), "non-prose input must be rejected regardless of anomalies")
		})
	}
}

func TestLikelyHasErrors_URLSchemeOnlyAtStart(t *testing.T) {
	// The scheme check is anchored; a mid-string scheme is just text.
	assert.True(t, LikelyHasErrors("seehttp://"))
}

// =============================================================================
// ANOMALY PATTERNS
// =============================================================================

func TestLikelyHasErrors_Anomalies(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"aaaa", true},
		{"helllo", true},
		{"xqrtz", true},
		{"XQRTZ", true},
		{"rhythm", true},
		{"hello", false},
		{"world", false},
		{"wrold", false},
		{"strength", false},
		{"banana", false},
		{"AaA", false},
		{"Books", false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.want, LikelyHasErrors(tc.input))
		})
	}
}

func TestLikelyHasErrors_VowelsAreCaseInsensitive(t *testing.T) {
	// Upper-case vowels break a consonant run just like lower-case ones.
	assert.False(t, LikelyHasErrors("bcdAfgh"))
	assert.True(t, LikelyHasErrors("bcdfgA"))
}

func TestLikelyHasErrors_NonLettersCountAsNonVowels(t *testing.T) {
	assert.True(t, LikelyHasErrors("12345"))
	assert.True(t, LikelyHasErrors("a b cd"))
	assert.False(t, LikelyHasErrors("a b c"))
}

// =============================================================================
// CLASSIFY / GATE
// =============================================================================

func TestClassify_Verdicts(t *testing.T) {
	assert.Equal(t, VerdictTooShort, Classify("ab", 3, 100))
	assert.Equal(t, VerdictTooLong, Classify(strings.Repeat("b", 11), 3, 10))
	assert.Equal(t, VerdictNotProse, Classify("a@bbbbb", 3, 100))
	assert.Equal(t, VerdictNoAnomaly, Classify("hello", 3, 100))
	assert.Equal(t, VerdictAccepted, Classify("helllo", 3, 100))
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "accepted", VerdictAccepted.String())
	assert.Equal(t, "not_prose", VerdictNotProse.String())
	assert.Equal(t, "unknown", Verdict(99).String())
}

func TestGate_DefaultsAndStats(t *testing.T) {
	g := NewGate(0, 0)

	var seen []Verdict
	g.OnVerdict = func(v Verdict) { seen = append(seen, v) }

	assert.True(t, g.Allow("helllo"))
	assert.False(t, g.Allow("hello"))
	assert.False(t, g.Allow("hi"))

	stats := g.Stats()
	assert.Equal(t, int64(3), stats.Checked)
	assert.Equal(t, int64(1), stats.Accepted)
	assert.Equal(t, []Verdict{VerdictAccepted, VerdictNoAnomaly, VerdictTooShort}, seen)
}

func TestGate_CustomBounds(t *testing.T) {
	g := NewGate(5, 6)
	assert.False(t, g.Allow("aaaa"))
	assert.True(t, g.Allow("aaaaa"))
	assert.False(t, g.Allow("aaaaaaa"))
}
