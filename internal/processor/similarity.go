package processor

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// similarity returns a 0..1 score for how alike two strings are, based on
// normalized Levenshtein edit distance over their lowercased, trimmed
// forms. Two empty strings are considered a perfect match; one empty and
// one non-empty is a total mismatch.
func similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1 - float64(dist)/float64(maxLen)
}
