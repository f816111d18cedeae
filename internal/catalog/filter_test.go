package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFamilies() []Family {
	return []Family{
		{ID: "1", Name: "Office Chair", Desc: "Ergonomic", Freemium: TierFree, Parametric: true,
			Expand: &FamilyExpand{Category: []Category{{Name: "SEATING"}}}},
		{ID: "2", Name: "Desk", Desc: "Standing desk with drawers", Freemium: TierPremium, Parametric: false},
		{ID: "3", Name: "Lamp", Desc: "", Freemium: TierFree, Parametric: false,
			Expand: &FamilyExpand{Category: []Category{{Name: "LIGHTING"}}}},
	}
}

func ids(items []Family) []string {
	out := make([]string, 0, len(items))
	for _, f := range items {
		out = append(out, f.ID)
	}
	return out
}

func TestFilterFamiliesSearch(t *testing.T) {
	items := sampleFamilies()

	assert.Equal(t, []string{"1"}, ids(FilterFamilies(items, "CHAIR", FilterAll)), "name match is case-insensitive")
	assert.Equal(t, []string{"2"}, ids(FilterFamilies(items, "drawers", FilterAll)), "description match")
	assert.Equal(t, []string{"3"}, ids(FilterFamilies(items, "light", FilterAll)), "category match")
	assert.Len(t, FilterFamilies(items, "", FilterAll), 3)
	assert.Empty(t, FilterFamilies(items, "sofa", FilterAll))
}

func TestFilterFamiliesFilter(t *testing.T) {
	items := sampleFamilies()

	assert.Equal(t, []string{"1"}, ids(FilterFamilies(items, "", FilterParametric)))
	assert.Equal(t, []string{"1", "3"}, ids(FilterFamilies(items, "", FilterFree)))
	assert.Equal(t, []string{"3"}, ids(FilterFamilies(items, "lamp", FilterFree)))
	assert.Empty(t, FilterFamilies(items, "desk", FilterFree), "search and filter must both match")
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	f, err = ParseFilter(" Parametric ")
	require.NoError(t, err)
	assert.Equal(t, FilterParametric, f)

	_, err = ParseFilter("premium")
	assert.Error(t, err)
}

func TestDiscover(t *testing.T) {
	items := sampleFamilies()

	asc := Discover(items, DiscoverQuery{Tier: "all"})
	assert.Equal(t, []string{"2", "3", "1"}, ids(asc))

	desc := Discover(items, DiscoverQuery{Descending: true})
	assert.Equal(t, []string{"1", "3", "2"}, ids(desc))

	premium := Discover(items, DiscoverQuery{Tier: TierPremium})
	assert.Equal(t, []string{"2"}, ids(premium))

	// Discover only searches names.
	assert.Empty(t, Discover(items, DiscoverQuery{Search: "ergonomic"}))
}

func TestTopCategories(t *testing.T) {
	stats := []CategoryStat{
		{Name: "CHAIRS", FamilyCount: 4},
		{Name: "TABLES", FamilyCount: 12},
		{Name: "LIGHTING", FamilyCount: 1},
		{Name: "DESKS", FamilyCount: 7},
	}

	top := TopCategories(stats, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "TABLES", top[0].Name)
	assert.Equal(t, "DESKS", top[1].Name)
	assert.Equal(t, "CHAIRS", top[2].Name)
	assert.Equal(t, "CHAIRS", stats[0].Name, "input must not be reordered")

	assert.Len(t, TopCategories(stats[:2], 3), 2)
}

func TestBarWidth(t *testing.T) {
	assert.Equal(t, 100.0, BarWidth(12, 12))
	assert.Equal(t, 50.0, BarWidth(6, 12))
	assert.Equal(t, 10.0, BarWidth(1, 12), "never narrower than 10%")
	assert.Equal(t, 10.0, BarWidth(0, 0))
}

func TestTopCategoryBars(t *testing.T) {
	stats := []CategoryStat{{Name: "A", FamilyCount: 20}, {Name: "B", FamilyCount: 5}}
	bars := TopCategoryBars(stats, 3)
	require.Len(t, bars, 2)
	assert.Equal(t, 100.0, bars[0].BarWidth)
	assert.Equal(t, 25.0, bars[1].BarWidth)
}
