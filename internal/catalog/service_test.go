package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase/pbtest"
)

func setupService(t *testing.T) (*Service, *pbtest.Server) {
	t.Helper()
	fake := pbtest.New(t)
	return NewService(pocketbase.New(fake.URL), 0), fake
}

func TestListFamiliesExpandsCategories(t *testing.T) {
	svc, fake := setupService(t)
	catIDs := fake.Seed(CollectionCategories, pbtest.Record{"name": "CHAIRS"})
	fake.Seed(CollectionFamilies, pbtest.Record{"name": "Chair", "category": []string{catIDs[0]}, "freemium": "free"})

	page, err := svc.ListFamilies(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPerPage, page.PerPage)
	assert.Equal(t, []string{"CHAIRS"}, page.Items[0].CategoryNames())
}

func TestUpdateFamily(t *testing.T) {
	svc, fake := setupService(t)
	ids := fake.Seed(CollectionFamilies, pbtest.Record{"name": "Chair", "freemium": "free"})

	f, err := svc.UpdateFamily(context.Background(), ids[0], map[string]any{"freemium": "premium"})
	require.NoError(t, err)
	assert.Equal(t, TierPremium, f.Freemium)
	assert.Equal(t, "premium", fake.Get(CollectionFamilies, ids[0])["freemium"])
}

func TestDeleteFamily(t *testing.T) {
	svc, fake := setupService(t)
	ids := fake.Seed(CollectionFamilies, pbtest.Record{"name": "Chair"})

	require.NoError(t, svc.DeleteFamily(context.Background(), ids[0]))
	assert.Nil(t, fake.Get(CollectionFamilies, ids[0]))

	err := svc.DeleteFamily(context.Background(), ids[0])
	assert.True(t, pocketbase.IsNotFound(err))
}

func TestCreateFamilyUploadsFiles(t *testing.T) {
	svc, fake := setupService(t)

	f, err := svc.CreateFamily(context.Background(), NewFamily{
		Name:          "Chair",
		Parametric:    true,
		NestedFamily:  false,
		CategoryIDs:   []string{"c1"},
		RFAName:       "Chair.rfa",
		RFA:           strings.NewReader("rfa-bytes"),
		ThumbnailName: "Chair_01.png",
		Thumbnail:     strings.NewReader("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, TierFree, f.Freemium, "tier defaults to free")
	assert.True(t, f.Parametric)
	assert.False(t, f.NestedFamily)
	assert.Equal(t, []string{"c1"}, f.Category)

	data, ok := fake.File(CollectionFamilies, f.ID, "Chair.rfa")
	require.True(t, ok)
	assert.Equal(t, "rfa-bytes", string(data))
	assert.Equal(t, "Chair_01.png", f.Thumbnail)
}

func TestCreateFamilyRequiresRFA(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.CreateFamily(context.Background(), NewFamily{Name: "Chair"})
	assert.Error(t, err)
}

func TestEnsureCategory(t *testing.T) {
	svc, fake := setupService(t)
	existing := fake.Seed(CollectionCategories, pbtest.Record{"name": "CHAIRS"})

	cat, err := svc.EnsureCategory(context.Background(), "CHAIRS")
	require.NoError(t, err)
	assert.Equal(t, existing[0], cat.ID)

	created, err := svc.EnsureCategory(context.Background(), " TABLES ")
	require.NoError(t, err)
	assert.Equal(t, "TABLES", created.Name)
	assert.Len(t, fake.All(CollectionCategories), 2)

	_, err = svc.EnsureCategory(context.Background(), "  ")
	assert.Error(t, err)
}

func TestQuoteFilter(t *testing.T) {
	assert.Equal(t, `'CHAIRS'`, quoteFilter("CHAIRS"))
	assert.Equal(t, `'O\'Neil'`, quoteFilter("O'Neil"))
	assert.Equal(t, `'DOORS\\'`, quoteFilter(`DOORS\`))
	assert.Equal(t, `'a\\\'b'`, quoteFilter(`a\'b`))
}

func TestEnsureCategoryQuotesBackslash(t *testing.T) {
	svc, fake := setupService(t)
	existing := fake.Seed(CollectionCategories, pbtest.Record{"name": `DOORS\`})

	cat, err := svc.EnsureCategory(context.Background(), `DOORS\`)
	require.NoError(t, err)
	assert.Equal(t, existing[0], cat.ID)
	assert.Len(t, fake.All(CollectionCategories), 1)
}

func TestThumbnailURL(t *testing.T) {
	svc := NewService(pocketbase.New("https://catalog.example.com"), 0)

	f := &Family{ID: "rec1", CollectionID: "col1", Thumbnail: "chair.png"}
	assert.Equal(t, "https://catalog.example.com/api/files/col1/rec1/chair.png", svc.ThumbnailURL(f))

	f.Thumbnail = ""
	assert.Equal(t, PlaceholderImage, svc.ThumbnailURL(f))

	f = &Family{Thumbnail: "chair.png"}
	assert.Equal(t, PlaceholderImage, svc.ThumbnailURL(f))
}

func TestRFAURLHasNoPlaceholder(t *testing.T) {
	svc := NewService(pocketbase.New("https://catalog.example.com"), 0)

	f := &Family{ID: "rec1", CollectionID: "col1", RFA: "chair.rfa"}
	assert.Equal(t, "https://catalog.example.com/api/files/col1/rec1/chair.rfa", svc.RFAURL(f))

	f.RFA = ""
	assert.Empty(t, svc.RFAURL(f))
	assert.Empty(t, svc.view(*f).RFAURL)
}

func TestCategoryStats(t *testing.T) {
	svc, fake := setupService(t)
	fake.Seed(CollectionCategoryStats,
		pbtest.Record{"name": "CHAIRS", "family_count": 3, "icon": "chair"},
		pbtest.Record{"name": "TABLES", "family_count": 9},
	)

	stats, err := svc.CategoryStats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "TABLES", TopCategories(stats, 1)[0].Name)
}
