package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refs(names ...string) []FileRef {
	out := make([]FileRef, 0, len(names))
	for _, n := range names {
		out = append(out, FileRef{Name: n})
	}
	return out
}

func TestMatchStripsSuffix(t *testing.T) {
	items := Match(
		refs("Office_Chair_v2.rfa"),
		refs("Office_Chair_thumb.png"),
		DefaultDefaults,
	)
	require.Len(t, items, 1)

	it := items[0]
	assert.True(t, it.Matched)
	assert.Equal(t, "Office_Chair_v2", it.Name)
	require.NotNil(t, it.Thumbnail)
	assert.Equal(t, "Office_Chair_thumb.png", it.Thumbnail.Name)
	assert.Equal(t, "Office_Chair_v2.rfaOffice_Chair_thumb.png", it.ID)
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	items := Match(refs("DESK_01.RFA"), refs("desk_preview.JPG"), DefaultDefaults)
	require.Len(t, items, 1)
	assert.True(t, items[0].Matched)
	assert.Equal(t, "DESK_01", items[0].Name)
}

func TestMatchWithoutUnderscore(t *testing.T) {
	items := Match(refs("Lamp.rfa"), refs("Lamp.webp", "lamp_1.png"), DefaultDefaults)
	require.Len(t, items, 1)
	assert.True(t, items[0].Matched)
	assert.Equal(t, "Lamp.webp", items[0].Thumbnail.Name, "first matching thumbnail wins")
}

func TestMatchFlagsUnmatched(t *testing.T) {
	items := Match(refs("Sofa_a.rfa", "Bed_a.rfa"), refs("Sofa_b.png"), DefaultDefaults)
	require.Len(t, items, 2)

	assert.True(t, items[0].Matched)
	assert.False(t, items[1].Matched)
	assert.Nil(t, items[1].Thumbnail)
	assert.Equal(t, "Bed_a.rfa", items[1].ID)

	s := Summarize(items)
	assert.Equal(t, Summary{Total: 2, Matched: 1, Unmatched: 1}, s)
}

func TestMatchOnlyLastUnderscoreIsDropped(t *testing.T) {
	items := Match(refs("a_b_c.rfa"), refs("a_c.png", "a_b_x.png"), DefaultDefaults)
	require.Len(t, items, 1)
	require.True(t, items[0].Matched)
	assert.Equal(t, "a_b_x.png", items[0].Thumbnail.Name)
}

func TestMatchAppliesDefaults(t *testing.T) {
	items := Match(refs("Chair.rfa"), nil, Defaults{Parametric: false, Freemium: "premium", NestedFamily: true})
	require.Len(t, items, 1)

	it := items[0]
	assert.False(t, it.Parametric)
	assert.Equal(t, "premium", it.Freemium)
	assert.True(t, it.NestedFamily)
	assert.Empty(t, it.SKU)
	assert.Empty(t, it.Desc)
	assert.NotNil(t, it.Categories)
	assert.Empty(t, it.Categories)
	assert.Empty(t, it.NewCategory)
}

func TestMatchKeepsOrder(t *testing.T) {
	items := Match(refs("c.rfa", "a.rfa", "b.rfa"), nil, DefaultDefaults)
	require.Len(t, items, 3)
	assert.Equal(t, "c", items[0].Name)
	assert.Equal(t, "a", items[1].Name)
	assert.Equal(t, "b", items[2].Name)
}

func TestNameHelpers(t *testing.T) {
	assert.Equal(t, "Chair", DisplayName("Chair.RfA"))
	assert.Equal(t, "Chair.rfa.bak", DisplayName("Chair.rfa.bak"))
	assert.Equal(t, "thumb", ImageName("thumb.JPEG"))
	assert.Equal(t, "thumb.bmp", ImageName("thumb.bmp"))
	assert.Equal(t, "a_b", BaseName("a_b_c"))
	assert.Equal(t, "abc", BaseName("abc"))
	assert.Equal(t, "", BaseName("_abc"))
}

func TestFilters(t *testing.T) {
	files := []FileRef{
		{Name: "a.rfa"},
		{Name: "b.RFA"},
		{Name: "c.rvt"},
		{Name: "d.png"},
		{Name: "e.bin", ContentType: "image/png"},
		{Name: "f.jpg", ContentType: "application/octet-stream"},
	}

	rfas := FilterRFAs(files)
	assert.Len(t, rfas, 2)

	images := FilterImages(files)
	require.Len(t, images, 2)
	assert.Equal(t, "d.png", images[0].Name)
	assert.Equal(t, "e.bin", images[1].Name, "declared content type wins over extension")
}
