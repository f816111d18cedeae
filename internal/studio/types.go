package studio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
)

// BulkAction names the field a bulk apply changes.
type BulkAction string

const (
	ActionFreemium   BulkAction = "freemium"
	ActionParametric BulkAction = "parametric"
	ActionCategories BulkAction = "categories"
)

// Errors returned by session operations.
var (
	ErrNothingSelected = errors.New("no families selected")
	ErrUnknownFamily   = errors.New("family is not loaded in this session")
	ErrNoDraft         = errors.New("no draft for this family")
)

// BulkRequest is one bulk edit applied to every selected family.
type BulkRequest struct {
	Action     BulkAction `json:"action"`
	Value      string     `json:"value,omitempty"`
	Categories []string   `json:"categories,omitempty"`
}

// Payload converts the request into the PATCH body sent for each family.
func (b BulkRequest) Payload() (map[string]any, error) {
	switch b.Action {
	case ActionFreemium:
		v := strings.ToLower(strings.TrimSpace(b.Value))
		if v != catalog.TierFree && v != catalog.TierPremium {
			return nil, fmt.Errorf("freemium must be %q or %q, got %q", catalog.TierFree, catalog.TierPremium, b.Value)
		}
		return map[string]any{"freemium": v}, nil
	case ActionParametric:
		return map[string]any{"parametric": b.Value == "true"}, nil
	case ActionCategories:
		ids := b.Categories
		if ids == nil {
			ids = []string{}
		}
		return map[string]any{"category": ids}, nil
	default:
		return nil, fmt.Errorf("unknown bulk action %q", b.Action)
	}
}

// ItemError is the failure of one family in a bulk apply.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResult summarises a bulk apply.
type BulkResult struct {
	Total   int         `json:"total"`
	Updated int         `json:"updated"`
	Failed  int         `json:"failed"`
	Errors  []ItemError `json:"errors,omitempty"`
	Message string      `json:"message"`
}

// Draft is a pending single-family edit.
type Draft struct {
	SKU           string   `json:"SKU"`
	Name          string   `json:"name"`
	Desc          string   `json:"desc"`
	Freemium      string   `json:"freemium"`
	Vendor        string   `json:"vendor"`
	Categories    []string `json:"category"`
	Specification string   `json:"specification"`
	LinkVendor    string   `json:"link_vendor"`
	Parametric    *bool    `json:"parametric,omitempty"`
	NestedFamily  *bool    `json:"nested_family,omitempty"`
}

// Defaults applied by SavePayload to empty draft fields.
const (
	DefaultVendor   = "pr"
	DefaultCategory = "fn"
)

// DraftFrom starts a draft from the current state of f.
func DraftFrom(f catalog.Family) Draft {
	p, n := f.Parametric, f.NestedFamily
	return Draft{
		SKU:           f.SKU,
		Name:          f.Name,
		Desc:          f.Desc,
		Freemium:      f.Freemium,
		Vendor:        f.Vendor,
		Categories:    append([]string(nil), f.Category...),
		Specification: f.Specification,
		LinkVendor:    f.LinkVendor,
		Parametric:    &p,
		NestedFamily:  &n,
	}
}

// SavePayload builds the PATCH body for saving d over item. Every field
// resolves to the draft value, then the item value, then its default, so a
// partial draft never clears what the family already has.
func SavePayload(d Draft, item *catalog.Family) map[string]any {
	var base catalog.Family
	if item != nil {
		base = *item
	}
	cats := d.Categories
	if len(cats) == 0 {
		cats = base.Category
	}
	if len(cats) == 0 {
		cats = []string{DefaultCategory}
	}
	return map[string]any{
		"SKU":           firstOf(d.SKU, base.SKU),
		"name":          firstOf(d.Name, base.Name),
		"desc":          firstOf(d.Desc, base.Desc),
		"freemium":      firstOf(d.Freemium, base.Freemium, catalog.TierFree),
		"vendor":        firstOf(d.Vendor, base.Vendor, DefaultVendor),
		"category":      cats,
		"specification": firstOf(d.Specification, base.Specification),
		"link_vendor":   firstOf(d.LinkVendor, base.LinkVendor),
		"parametric":    flag(d.Parametric, item, func(f *catalog.Family) bool { return f.Parametric }),
		"nested_family": flag(d.NestedFamily, item, func(f *catalog.Family) bool { return f.NestedFamily }),
	}
}

// firstOf returns the first non-empty value.
func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func flag(draft *bool, item *catalog.Family, get func(*catalog.Family) bool) bool {
	if draft != nil {
		return *draft
	}
	if item != nil {
		return get(item)
	}
	return true
}
