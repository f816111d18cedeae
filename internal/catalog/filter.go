package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Filter narrows the studio view.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterParametric Filter = "parametric"
	FilterFree       Filter = "free"
)

// ParseFilter converts user input into a Filter. Empty input means all.
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterParametric:
		return FilterParametric, nil
	case FilterFree:
		return FilterFree, nil
	default:
		return "", fmt.Errorf("unknown filter %q: must be all, parametric or free", s)
	}
}

// Matches reports whether f passes both the search term and the filter.
// The search is a case-insensitive substring match against the name, the
// description and every category name.
func Matches(f *Family, search string, filter Filter) bool {
	return matchesSearch(f, strings.ToLower(search)) && matchesFilter(f, filter)
}

func matchesSearch(f *Family, term string) bool {
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(f.Name), term) || strings.Contains(strings.ToLower(f.Desc), term) {
		return true
	}
	for _, name := range f.CategoryNames() {
		if strings.Contains(strings.ToLower(name), term) {
			return true
		}
	}
	return false
}

func matchesFilter(f *Family, filter Filter) bool {
	switch filter {
	case FilterParametric:
		return f.Parametric
	case FilterFree:
		return f.IsFree()
	default:
		return true
	}
}

// FilterFamilies returns the families matching search and filter, in order.
func FilterFamilies(items []Family, search string, filter Filter) []Family {
	out := make([]Family, 0, len(items))
	for i := range items {
		if Matches(&items[i], search, filter) {
			out = append(out, items[i])
		}
	}
	return out
}

// DiscoverQuery drives the public browsing view.
type DiscoverQuery struct {
	Search     string
	Tier       string // "all", "free" or "premium"
	Descending bool
}

// Discover sorts families by name and keeps those matching the tier and a
// case-insensitive name search.
func Discover(items []Family, q DiscoverQuery) []Family {
	term := strings.ToLower(q.Search)
	out := make([]Family, 0, len(items))
	for _, f := range items {
		if q.Tier != "" && q.Tier != "all" && f.Freemium != q.Tier {
			continue
		}
		if !strings.Contains(strings.ToLower(f.Name), term) {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if q.Descending {
			return a > b
		}
		return a < b
	})
	return out
}

// TopCategories returns the n categories with the most families.
func TopCategories(stats []CategoryStat, n int) []CategoryStat {
	sorted := make([]CategoryStat, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FamilyCount > sorted[j].FamilyCount
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// BarWidth is the percentage width of a category bar relative to the
// largest count, never below 10.
func BarWidth(count, max int) float64 {
	if max <= 0 {
		return 10
	}
	w := float64(count) / float64(max) * 100
	if w < 10 {
		return 10
	}
	return w
}

// MaxFamilyCount returns the largest family_count in stats.
func MaxFamilyCount(stats []CategoryStat) int {
	max := 0
	for _, s := range stats {
		if s.FamilyCount > max {
			max = s.FamilyCount
		}
	}
	return max
}
