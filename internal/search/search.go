// Package search ranks instrument symbols against a free-text query and
// pages the results.
package search

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Search filters universe by query and orders the matches by relevance.
// A symbol matches when it equals, starts with or contains the query, or
// when its display name in names contains it; all case-insensitive.
// A blank query returns a copy of universe unchanged.
func Search(universe []string, query string, names map[string]string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return slices.Clone(universe)
	}

	out := make([]string, 0, len(universe))
	for _, sym := range universe {
		if matches(sym, q, names) {
			out = append(out, sym)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return compareRelevance(a, b, q)
	})
	return out
}

func matches(sym, q string, names map[string]string) bool {
	if strings.Contains(strings.ToLower(sym), q) {
		return true
	}
	name, ok := names[sym]
	return ok && strings.Contains(strings.ToLower(name), q)
}

// compareRelevance orders exact matches first, then prefix matches, then
// shorter symbols, then lexicographically.
func compareRelevance(a, b, q string) int {
	al, bl := strings.ToLower(a), strings.ToLower(b)

	if c := preferTrue(al == q, bl == q); c != 0 {
		return c
	}
	if c := preferTrue(strings.HasPrefix(al, q), strings.HasPrefix(bl, q)); c != 0 {
		return c
	}
	if c := cmp.Compare(utf8.RuneCountInString(a), utf8.RuneCountInString(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func preferTrue(a, b bool) int {
	switch {
	case a && !b:
		return -1
	case !a && b:
		return 1
	}
	return 0
}
