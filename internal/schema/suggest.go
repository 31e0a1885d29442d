package schema

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// Closest returns the candidate nearest to name by edit distance, or "" when
// nothing is close enough to be a plausible typo
func Closest(name string, candidates []string) string {
	best, bestDist := "", -1
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	for _, c := range sorted {
		d := levenshtein.Distance(strings.ToLower(name), strings.ToLower(c), nil)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > maxTypoDistance(name) {
		return ""
	}
	return best
}

func maxTypoDistance(name string) int {
	switch n := len(name); {
	case n <= 3:
		return 1
	case n <= 8:
		return 2
	default:
		return 3
	}
}

// didYouMean formats a suggestion for Closest, or "" when there is none
func didYouMean(name string, candidates []string) string {
	if c := Closest(name, candidates); c != "" {
		return "did you mean '" + c + "'?"
	}
	return ""
}
