// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package heuristic

import (
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMinLength is the shortest candidate worth checking.
	DefaultMinLength = 3

	// DefaultMaxLength is the longest candidate worth checking.
	DefaultMaxLength = 100

	// repeatRun is the number of identical consecutive characters that
	// counts as an anomaly.
	repeatRun = 3

	// consonantRun is the number of consecutive non-vowels that counts as
	// an anomaly.
	consonantRun = 5
)

// nonProse lists the characters that mark a token as code rather than prose.
const nonProse = "{}[]()"

// Verdict explains why the gate accepted or rejected a candidate.
type Verdict int

const (
	VerdictAccepted Verdict = iota
	VerdictTooShort
	VerdictTooLong
	VerdictNotProse
	VerdictNoAnomaly
)

// String returns a short label suitable for logs and metric labels.
func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictTooShort:
		return "too_short"
	case VerdictTooLong:
		return "too_long"
	case VerdictNotProse:
		return "not_prose"
	case VerdictNoAnomaly:
		return "no_anomaly"
	default:
		return "unknown"
	}
}

// LikelyHasErrors reports whether s is worth checking with the default bounds.
func LikelyHasErrors(s string) bool {
	return Classify(s, DefaultMinLength, DefaultMaxLength) == VerdictAccepted
}

// Classify runs every gate rule against s and returns the first one that
// decides the outcome. Length is counted in characters, not bytes.
func Classify(s string, minLen, maxLen int) Verdict {
	n := utf8.RuneCountInString(s)
	if n < minLen {
		return VerdictTooShort
	}
	if n > maxLen {
		return VerdictTooLong
	}
	if looksLikeNonProse(s) {
		return VerdictNotProse
	}
	if hasRepeatedRun(s, repeatRun) || hasConsonantRun(s, consonantRun) {
		return VerdictAccepted
	}
	return VerdictNoAnomaly
}

// looksLikeNonProse matches URLs (by scheme prefix), anything carrying an
// '@', and anything with brackets, braces or parentheses.
func looksLikeNonProse(s string) bool {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return true
	}
	return strings.ContainsRune(s, '@') || strings.ContainsAny(s, nonProse)
}

// hasRepeatedRun reports whether s contains at least n identical
// consecutive characters.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}

// hasConsonantRun reports whether s contains at least n consecutive
// characters that are not a, e, i, o or u (any case). Digits, punctuation
// and spaces count as non-vowels too.
func hasConsonantRun(s string, n int) bool {
	run := 0
	for _, r := range s {
		if isVowel(r) {
			run = 0
			continue
		}
		run++
		if run >= n {
			return true
		}
	}
	return false
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// =============================================================================
// GATE
// =============================================================================

// Gate wraps the heuristic with configurable bounds and counts its verdicts.
// A Gate is safe for concurrent use.
type Gate struct {
	minLen int
	maxLen int

	checked  atomic.Int64
	accepted atomic.Int64

	// OnVerdict, when set, is called after every decision.
	OnVerdict func(Verdict)
}

// GateStats is a snapshot of a Gate's counters.
type GateStats struct {
	Checked  int64 `json:"checked"`
	Accepted int64 `json:"accepted"`
}

// NewGate creates a Gate. Non-positive bounds fall back to the defaults.
func NewGate(minLen, maxLen int) *Gate {
	if minLen <= 0 {
		minLen = DefaultMinLength
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	return &Gate{minLen: minLen, maxLen: maxLen}
}

// Allow reports whether s should be sent to the model.
func (g *Gate) Allow(s string) bool {
	v := Classify(s, g.minLen, g.maxLen)
	g.checked.Add(1)
	if v == VerdictAccepted {
		g.accepted.Add(1)
	}
	if g.OnVerdict != nil {
		g.OnVerdict(v)
	}
	return v == VerdictAccepted
}

// Stats returns the gate's counters.
func (g *Gate) Stats() GateStats {
	return GateStats{
		Checked:  g.checked.Load(),
		Accepted: g.accepted.Load(),
	}
}
