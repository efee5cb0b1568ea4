package utils

import (
	"strings"
	"unicode"
)

// NormalizeSignature reduces message text to a comparable signature:
// lowercase, punctuation stripped, whitespace collapsed, truncated. Returns
// "" when the normalized text is shorter than minLength.
func NormalizeSignature(text string, minLength, maxLength int) string {
	var sb strings.Builder
	sb.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				sb.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	normalized := strings.TrimSpace(sb.String())
	if len(normalized) < minLength {
		return ""
	}
	if maxLength > 0 && len(normalized) > maxLength {
		normalized = normalized[:maxLength]
	}
	return normalized
}

// UniqueTokenRatio is the share of distinct tokens among all tokens; low
// values flag copy-paste filler. Returns 1 when fewer than minTokens.
func UniqueTokenRatio(text string, minTokens int) float64 {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) < minTokens {
		return 1
	}
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		seen[token] = struct{}{}
	}
	return float64(len(seen)) / float64(len(tokens))
}

// MaxRunLength is the longest run of one repeated rune in the text.
func MaxRunLength(text string) int {
	var prev rune
	run, best := 0, 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > best {
			best = run
		}
	}
	return best
}
