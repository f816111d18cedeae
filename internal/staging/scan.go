package staging

import (
	"fmt"

	"github.com/ziadkadry99/rvt-studio/internal/matcher"
	"github.com/ziadkadry99/rvt-studio/internal/walker"
)

// ScanOptions describes where to look for family files and thumbnails.
type ScanOptions struct {
	RFADir       string
	ThumbnailDir string // Defaults to RFADir.
	Include      []string
	Exclude      []string
	Defaults     matcher.Defaults
}

// Scan walks the configured directories and pairs every .rfa file with a
// thumbnail.
func Scan(opts ScanOptions) ([]matcher.Item, error) {
	if opts.RFADir == "" {
		return nil, fmt.Errorf("family directory is required")
	}
	thumbDir := opts.ThumbnailDir
	if thumbDir == "" {
		thumbDir = opts.RFADir
	}

	rfas, err := collect(opts.RFADir, opts, matcher.IsRFA)
	if err != nil {
		return nil, fmt.Errorf("scanning families: %w", err)
	}
	thumbs, err := collect(thumbDir, opts, func(name string) bool { return matcher.IsImage(matcher.FileRef{Name: name}) })
	if err != nil {
		return nil, fmt.Errorf("scanning thumbnails: %w", err)
	}

	return matcher.Match(rfas, thumbs, opts.Defaults), nil
}

func collect(dir string, opts ScanOptions, accept func(string) bool) ([]matcher.FileRef, error) {
	files, err := walker.Walk(walker.WalkerConfig{
		RootDir: dir,
		Include: opts.Include,
		Exclude: opts.Exclude,
		Accept:  accept,

		SkipBackups: true,
	})
	if err != nil {
		return nil, err
	}
	refs := make([]matcher.FileRef, 0, len(files))
	for _, f := range files {
		refs = append(refs, matcher.FileRef{
			Name:        f.Name,
			Path:        f.Path,
			Size:        f.Size,
			ContentType: f.ContentType,
		})
	}
	return refs, nil
}
