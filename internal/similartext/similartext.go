// Package similartext turns a closest-name lookup into the ", maybe you
// mean X?" suffix the semantic analyzer appends to an unresolved-identifier
// or unknown-function error.
package similartext

import (
	"sort"
	"strings"

	"github.com/webql/webql/internal/text_distance"
)

// maxDistance bounds how different a suggestion may be before it's
// considered noise rather than a likely typo.
const maxDistance = 3

// Find returns a ", maybe you mean X?" (or "X or Y?") suffix naming every
// name in names tied for the smallest edit distance to target, or "" if
// target is empty or nothing is close enough to be useful.
func Find(names []string, target string) string {
	if target == "" || len(names) == 0 {
		return ""
	}
	return phrase(closest(names, target))
}

// FindFromMap is Find over a map's keys.
func FindFromMap[V any](names map[string]V, target string) string {
	if target == "" || len(names) == 0 {
		return ""
	}
	keys := make([]string, 0, len(names))
	for n := range names {
		keys = append(keys, n)
	}
	return phrase(closest(keys, target))
}

func closest(names []string, target string) []string {
	best := -1
	var matches []string
	for _, n := range names {
		d := text_distance.Levenshtein(n, target)
		switch {
		case best == -1 || d < best:
			best = d
			matches = []string{n}
		case d == best:
			matches = append(matches, n)
		}
	}
	if best > maxDistance {
		return nil
	}
	sort.Strings(matches)
	return matches
}

func phrase(matches []string) string {
	if len(matches) == 0 {
		return ""
	}
	var joined string
	if len(matches) == 1 {
		joined = matches[0]
	} else {
		joined = strings.Join(matches[:len(matches)-1], ", ") + " or " + matches[len(matches)-1]
	}
	return ", maybe you mean " + joined + "?"
}
