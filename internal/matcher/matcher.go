// Package matcher pairs Revit family files with their thumbnail images by
// file name.
package matcher

import (
	"mime"
	"path/filepath"
	"regexp"
	"strings"
)

// Defaults are the initial field values of every new Item.
type Defaults struct {
	Parametric   bool
	Freemium     string
	NestedFamily bool
}

// DefaultDefaults are used when the caller has no configured defaults.
var DefaultDefaults = Defaults{
	Parametric:   true,
	Freemium:     "free",
	NestedFamily: true,
}

// FileRef is a candidate file. Path may be empty for files that only exist
// in memory (browser uploads); Name is always the base file name.
type FileRef struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Item is one family file and its paired thumbnail, ready for editing.
type Item struct {
	ID           string   `json:"id"`
	RFA          FileRef  `json:"rfa"`
	Thumbnail    *FileRef `json:"thumbnail,omitempty"`
	Matched      bool     `json:"matched"`
	Name         string   `json:"name"`
	SKU          string   `json:"SKU"`
	Desc         string   `json:"desc"`
	Parametric   bool     `json:"parametric"`
	Freemium     string   `json:"freemium"`
	NestedFamily bool     `json:"nested_family"`
	Categories   []string `json:"categories"`
	NewCategory  string   `json:"newCategory"`
}

var (
	rfaExt   = regexp.MustCompile(`(?i)\.rfa$`)
	imageExt = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)
)

// DisplayName strips a trailing .rfa extension.
func DisplayName(rfaName string) string {
	return rfaExt.ReplaceAllString(rfaName, "")
}

// ImageName strips a trailing image extension.
func ImageName(name string) string {
	return imageExt.ReplaceAllString(name, "")
}

// BaseName drops the last "_suffix" segment, if any.
func BaseName(name string) string {
	if i := strings.LastIndex(name, "_"); i >= 0 {
		return name[:i]
	}
	return name
}

// Match pairs every family file with the first thumbnail whose base name
// equals its own, ignoring case. Files without a partner are returned with
// Matched set to false.
func Match(rfas, thumbnails []FileRef, d Defaults) []Item {
	thumbBases := make([]string, len(thumbnails))
	for i, t := range thumbnails {
		thumbBases[i] = strings.ToLower(BaseName(ImageName(t.Name)))
	}

	items := make([]Item, 0, len(rfas))
	for _, rfa := range rfas {
		name := DisplayName(rfa.Name)
		base := strings.ToLower(BaseName(name))

		item := Item{
			ID:           rfa.Name,
			RFA:          rfa,
			Name:         name,
			Parametric:   d.Parametric,
			Freemium:     d.Freemium,
			NestedFamily: d.NestedFamily,
			Categories:   []string{},
		}
		for i, tb := range thumbBases {
			if tb == base {
				thumb := thumbnails[i]
				item.Thumbnail = &thumb
				item.Matched = true
				item.ID += thumb.Name
				break
			}
		}
		items = append(items, item)
	}
	return items
}

// IsRFA reports whether name is a Revit family file.
func IsRFA(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".rfa")
}

// IsImage reports whether a file is an image, by declared content type or,
// failing that, by extension.
func IsImage(f FileRef) bool {
	if f.ContentType != "" {
		return strings.HasPrefix(f.ContentType, "image/")
	}
	return strings.HasPrefix(mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))), "image/")
}

// FilterRFAs keeps only .rfa files.
func FilterRFAs(files []FileRef) []FileRef {
	var out []FileRef
	for _, f := range files {
		if IsRFA(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// FilterImages keeps only image files.
func FilterImages(files []FileRef) []FileRef {
	var out []FileRef
	for _, f := range files {
		if IsImage(f) {
			out = append(out, f)
		}
	}
	return out
}

// Summary counts matched and unmatched items.
type Summary struct {
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
}

// Summarize counts items by match state.
func Summarize(items []Item) Summary {
	s := Summary{Total: len(items)}
	for _, it := range items {
		if it.Matched {
			s.Matched++
		}
	}
	s.Unmatched = s.Total - s.Matched
	return s
}
