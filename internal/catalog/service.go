package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
)

// DefaultPerPage is the page size used by the studio and discover views.
const DefaultPerPage = 30

// FamilyPage is one page of families.
type FamilyPage = pocketbase.ListResult[Family]

// Service reads and writes the family catalog.
type Service struct {
	client  *pocketbase.Client
	perPage int
}

// NewService creates a Service. perPage <= 0 selects DefaultPerPage.
func NewService(client *pocketbase.Client, perPage int) *Service {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Service{client: client, perPage: perPage}
}

// Client returns the underlying backend client.
func (s *Service) Client() *pocketbase.Client { return s.client }

// ListFamilies returns one page of families with categories expanded.
func (s *Service) ListFamilies(ctx context.Context, page, perPage int) (*FamilyPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = s.perPage
	}
	return pocketbase.List[Family](ctx, s.client, CollectionFamilies, pocketbase.ListOptions{
		Page:    page,
		PerPage: perPage,
		Expand:  "category",
	})
}

// AllFamilies returns every family with categories and vendor expanded.
func (s *Service) AllFamilies(ctx context.Context) ([]Family, error) {
	return pocketbase.FullList[Family](ctx, s.client, CollectionFamilies, pocketbase.ListOptions{
		Expand: "category,vendor",
	})
}

// GetFamily fetches a single family.
func (s *Service) GetFamily(ctx context.Context, id string) (*Family, error) {
	return pocketbase.Get[Family](ctx, s.client, CollectionFamilies, id, "category,vendor")
}

// UpdateFamily patches a family and returns the stored record.
func (s *Service) UpdateFamily(ctx context.Context, id string, patch map[string]any) (*Family, error) {
	return pocketbase.Update[Family](ctx, s.client, CollectionFamilies, id, patch)
}

// DeleteFamily removes a family.
func (s *Service) DeleteFamily(ctx context.Context, id string) error {
	return s.client.Delete(ctx, CollectionFamilies, id)
}

// NewFamily is the input to CreateFamily.
type NewFamily struct {
	Name          string
	SKU           string
	Desc          string
	Freemium      string
	Parametric    bool
	NestedFamily  bool
	CategoryIDs   []string
	Vendor        string
	Specification string

	RFAName       string
	RFA           io.Reader
	ThumbnailName string
	Thumbnail     io.Reader
}

// CreateFamily uploads a new family with its RFA and optional thumbnail.
func (s *Service) CreateFamily(ctx context.Context, nf NewFamily) (*Family, error) {
	if nf.RFA == nil || nf.RFAName == "" {
		return nil, fmt.Errorf("creating family %q: rfa file is required", nf.Name)
	}
	freemium := nf.Freemium
	if freemium == "" {
		freemium = TierFree
	}

	form := pocketbase.NewMultipart().
		Set("name", nf.Name).
		Set("SKU", nf.SKU).
		Set("desc", nf.Desc).
		Set("freemium", freemium).
		SetBool("parametric", nf.Parametric).
		SetBool("nested_family", nf.NestedFamily).
		SetList("category", nf.CategoryIDs).
		Set("specification", nf.Specification)
	if nf.Vendor != "" {
		form.Set("vendor", nf.Vendor)
	}
	form.AddFile("rfa", nf.RFAName, nf.RFA)
	if nf.Thumbnail != nil && nf.ThumbnailName != "" {
		form.AddFile("thumbnail", nf.ThumbnailName, nf.Thumbnail)
	}

	return pocketbase.Create[Family](ctx, s.client, CollectionFamilies, form)
}

// ListCategories returns every category.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return pocketbase.FullList[Category](ctx, s.client, CollectionCategories, pocketbase.ListOptions{Sort: "name"})
}

// CategoryStats returns per-category family counts.
func (s *Service) CategoryStats(ctx context.Context) ([]CategoryStat, error) {
	return pocketbase.FullList[CategoryStat](ctx, s.client, CollectionCategoryStats, pocketbase.ListOptions{})
}

// ListVendors returns every vendor.
func (s *Service) ListVendors(ctx context.Context) ([]Vendor, error) {
	return pocketbase.FullList[Vendor](ctx, s.client, CollectionVendors, pocketbase.ListOptions{Sort: "name"})
}

// EnsureCategory returns the category with the given name, creating it if
// it does not exist.
func (s *Service) EnsureCategory(ctx context.Context, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("category name is required")
	}

	res, err := pocketbase.List[Category](ctx, s.client, CollectionCategories, pocketbase.ListOptions{
		Page:    1,
		PerPage: 1,
		Filter:  fmt.Sprintf("name = %s", quoteFilter(name)),
	})
	if err != nil {
		return nil, fmt.Errorf("looking up category %q: %w", name, err)
	}
	if len(res.Items) > 0 {
		return &res.Items[0], nil
	}

	return pocketbase.Create[Category](ctx, s.client, CollectionCategories, map[string]string{"name": name})
}

var filterEscaper = strings.NewReplacer(`\`, `\\`, "'", `\'`)

// quoteFilter renders s as a single-quoted filter string literal.
func quoteFilter(s string) string {
	return "'" + filterEscaper.Replace(s) + "'"
}

// ThumbnailURL returns the public thumbnail URL of f, or PlaceholderImage.
func (s *Service) ThumbnailURL(f *Family) string {
	if u := s.client.FileURL(f.CollectionID, f.ID, f.Thumbnail); u != "" {
		return u
	}
	return PlaceholderImage
}

// RFAURL returns the download URL of f's RFA file, or "".
func (s *Service) RFAURL(f *Family) string {
	return s.client.FileURL(f.CollectionID, f.ID, f.RFA)
}
