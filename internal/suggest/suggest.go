// Package suggest finds near matches for mistyped field names using
// Levenshtein distance.
package suggest

import (
	"fmt"
	"sort"
	"strings"
)

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(
				prev[j]+1,      // deletion
				cur[j-1]+1,     // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Similar returns up to three candidates close to unknown, best first.
// Comparison ignores case; a candidate qualifies within 3 edits or half the
// length of unknown, whichever is larger.
func Similar(unknown string, candidates []string) []string {
	unknown = strings.ToLower(strings.TrimSpace(unknown))

	type scored struct {
		name  string
		score int
	}
	var matches []scored
	seen := make(map[string]bool)
	maxDist := max(3, len(unknown)/2)
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		if d := levenshtein(unknown, strings.ToLower(c)); d <= maxDist {
			matches = append(matches, scored{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score < matches[j].score })

	var result []string
	for i := 0; i < len(matches) && i < 3; i++ {
		result = append(result, matches[i].name)
	}
	return result
}

// Hint formats suggestions as a " (did you mean ...?)" suffix, or "" when
// there are none.
func Hint(suggestions []string) string {
	if len(suggestions) == 0 {
		return ""
	}
	quoted := make([]string, len(suggestions))
	for i, s := range suggestions {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return " (did you mean " + strings.Join(quoted, " or ") + "?)"
}
