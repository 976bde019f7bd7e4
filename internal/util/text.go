package util

import (
	"regexp"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeName uppercases, trims and collapses whitespace. Client names in
// the invoice ledger and the B2B registry disagree on casing and spacing, so
// every name comparison goes through this first.
func NormalizeName(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	s = reSpaces.ReplaceAllString(s, " ")
	return s
}

// FirstRunes returns the first n runes of s, or s itself when shorter.
func FirstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SimilarityRatio is a Ratcliff/Obershelp matching-blocks ratio in [0,1]:
// 2*M / (len(a)+len(b)) where M is the total length of the recursively
// longest common substrings.
func SimilarityRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ra := []rune(a)
	rb := []rune(b)
	matched := matchingBlocks(ra, rb)
	return float64(2*matched) / float64(len(ra)+len(rb))
}

func matchingBlocks(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	bestLen, bestA, bestB := 0, 0, 0
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > bestLen {
				bestLen, bestA, bestB = k, i, j
			}
		}
	}

	if bestLen == 0 {
		return 0
	}

	total := bestLen
	total += matchingBlocks(a[:bestA], b[:bestB])
	total += matchingBlocks(a[bestA+bestLen:], b[bestB+bestLen:])
	return total
}

func StringPtr(v string) *string { return &v }
