// Package glob implements the anchored '*'/'?' pattern matching used by
// KeysMatch and by wildcard pub/sub subscriptions.
package glob

import (
	"strings"
	"unicode/utf8"
)

// Match reports whether s matches pattern in full.
//
// '*' matches any run of characters (including none) and '?' matches exactly
// one character. Every other character matches itself. A character is one
// UTF-8 sequence, or a single byte where the input is not valid UTF-8, and
// characters compare by their raw bytes. The matcher walks both strings once
// and backtracks to the most recent '*' on a mismatch, so the worst case is
// O(len(pattern) * len(s)).
func Match(pattern, s string) bool {
	pi, si := 0, 0
	starP, starS := -1, -1

	for si < len(s) {
		sn := charLen(s, si)
		var pn int
		if pi < len(pattern) {
			pn = charLen(pattern, pi)
		}

		switch {
		case pi < len(pattern) && pattern[pi] == '*':
			starP = pi
			starS = si
			pi++
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi:pi+pn] == s[si:si+sn]):
			pi += pn
			si += sn
		case starP != -1:
			// Let the last '*' swallow one more character and retry.
			pi = starP + 1
			starS += charLen(s, starS)
			si = starS
		default:
			return false
		}
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// charLen returns the byte length of the character starting at s[i].
func charLen(s string, i int) int {
	_, n := utf8.DecodeRuneInString(s[i:])
	return n
}

// HasWildcard reports whether pattern contains '*' or '?'.
func HasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// Filter returns the elements of items that match pattern, preserving order.
func Filter(pattern string, items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if Match(pattern, item) {
			out = append(out, item)
		}
	}
	return out
}
