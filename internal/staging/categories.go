package staging

import (
	"sort"
	"strings"
)

// PredefinedCategories are offered as suggestions before any category exists
// on the backend.
var PredefinedCategories = []string{
	"FURNITURE",
	"CHAIRS",
	"TABLES",
	"STORAGE",
	"CABINETS",
	"DRAWERS",
	"SHELVING",
	"OFFICE",
	"CONFERENCE",
	"WORKSTATIONS",
	"SEATING",
	"DESKS",
	"LIGHTING",
	"DECORATIVE",
	"OUTDOOR",
}

// NormalizeCategory trims and upper-cases a category name.
func NormalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// AddCategories appends the normalized names to list, skipping blanks and
// names already present.
func AddCategories(list []string, names ...string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list)+len(names))
	for _, c := range list {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, n := range names {
		n = NormalizeCategory(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// RemoveCategory returns list without name.
func RemoveCategory(list []string, name string) []string {
	name = NormalizeCategory(name)
	out := make([]string, 0, len(list))
	for _, c := range list {
		if c != name {
			out = append(out, c)
		}
	}
	return out
}

// Suggestions returns candidate categories for the typed input. Chosen
// names are excluded. Prefix matches come before substring matches; an
// empty input returns every remaining candidate. Candidates are the
// predefined list followed by extra (for example the backend's categories).
func Suggestions(input string, chosen []string, extra ...string) []string {
	input = NormalizeCategory(input)
	skip := make(map[string]bool, len(chosen))
	for _, c := range chosen {
		skip[NormalizeCategory(c)] = true
	}

	var prefix, contains []string
	for _, c := range AddCategories(PredefinedCategories, extra...) {
		if skip[c] {
			continue
		}
		switch {
		case input == "" || strings.HasPrefix(c, input):
			prefix = append(prefix, c)
		case strings.Contains(c, input):
			contains = append(contains, c)
		}
	}
	if input != "" {
		sort.Strings(prefix)
		sort.Strings(contains)
	}
	return append(append([]string{}, prefix...), contains...)
}
