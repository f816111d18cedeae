package catalog

// Collection names on the backend.
const (
	CollectionFamilies      = "families"
	CollectionCategories    = "category"
	CollectionCategoryStats = "view_category"
	CollectionVendors       = "vendor"
)

// Access tiers stored in Family.Freemium.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// PlaceholderImage is returned when a family has no usable thumbnail.
const PlaceholderImage = "/placeholder.svg"

// Family is one Revit family record.
type Family struct {
	ID             string        `json:"id"`
	CollectionID   string        `json:"collectionId"`
	CollectionName string        `json:"collectionName"`
	Created        string        `json:"created"`
	Updated        string        `json:"updated"`
	Name           string        `json:"name"`
	Desc           string        `json:"desc"`
	SKU            string        `json:"SKU"`
	Freemium       string        `json:"freemium"`
	Parametric     bool          `json:"parametric"`
	NestedFamily   bool          `json:"nested_family"`
	Category       []string      `json:"category"`
	Vendor         string        `json:"vendor"`
	LinkVendor     string        `json:"link_vendor"`
	RFA            string        `json:"rfa"`
	Thumbnail      string        `json:"thumbnail"`
	Specification  string        `json:"specification"`
	Expand         *FamilyExpand `json:"expand,omitempty"`
}

// FamilyExpand holds relations resolved with ?expand=.
type FamilyExpand struct {
	Category []Category `json:"category,omitempty"`
	Vendor   *Vendor    `json:"vendor,omitempty"`
}

// Categories returns the expanded category records, if loaded.
func (f *Family) Categories() []Category {
	if f.Expand == nil {
		return nil
	}
	return f.Expand.Category
}

// CategoryNames returns the names of the expanded categories.
func (f *Family) CategoryNames() []string {
	cats := f.Categories()
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	return names
}

// IsFree reports whether the family is in the free tier.
func (f *Family) IsFree() bool { return f.Freemium == TierFree }

// Category is a family category.
type Category struct {
	ID             string `json:"id"`
	CollectionID   string `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	Created        string `json:"created"`
	Updated        string `json:"updated"`
	Name           string `json:"name"`
}

// CategoryStat is a row of the view_category view.
type CategoryStat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FamilyCount int    `json:"family_count"`
	Icon        string `json:"icon"`
}

// Vendor is the manufacturer a family is published for.
type Vendor struct {
	ID             string `json:"id"`
	CollectionID   string `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	Created        string `json:"created"`
	Updated        string `json:"updated"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Logo           string `json:"logo"`
}
