package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
	"github.com/ziadkadry99/rvt-studio/internal/thumbnail"
)

// Catalog is the subset of catalog.Service the importer needs.
type Catalog interface {
	EnsureCategory(ctx context.Context, name string) (*catalog.Category, error)
	CreateFamily(ctx context.Context, nf catalog.NewFamily) (*catalog.Family, error)
}

// Importer uploads selected staged items to the backend.
type Importer struct {
	store         *Store
	catalog       Catalog
	concurrency   int
	thumbnailSize int
	reporter      progress.Reporter
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithConcurrency bounds the number of parallel uploads. 0 means unbounded.
func WithConcurrency(n int) ImporterOption {
	return func(i *Importer) { i.concurrency = n }
}

// WithThumbnailSize sets the longest thumbnail side. 0 uploads originals.
func WithThumbnailSize(px int) ImporterOption {
	return func(i *Importer) { i.thumbnailSize = px }
}

// WithReporter sets the progress reporter.
func WithReporter(r progress.Reporter) ImporterOption {
	return func(i *Importer) { i.reporter = r }
}

// NewImporter creates an Importer.
func NewImporter(store *Store, cat Catalog, opts ...ImporterOption) *Importer {
	i := &Importer{store: store, catalog: cat, reporter: progress.Nop{}}
	for _, opt := range opts {
		opt(i)
	}
	if i.reporter == nil {
		i.reporter = progress.Nop{}
	}
	return i
}

// ImportResult summarises an import run.
type ImportResult struct {
	Total    int               `json:"total"`
	Imported int               `json:"imported"`
	Failed   int               `json:"failed"`
	Errors   map[string]string `json:"errors,omitempty"`
	Message  string            `json:"message"`
}

// Import uploads every selected item of the batch that is not yet
// imported. Category names are resolved to ids first. One failing item
// never stops the others; it is marked failed and stays staged.
func (i *Importer) Import(ctx context.Context, batchID string) (*ImportResult, error) {
	all, err := i.store.ListItems(ctx, batchID, ItemFilter{SelectedOnly: true})
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(all))
	for _, it := range all {
		if it.Status != StatusImported {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil, ErrNothingSelected
	}

	categoryIDs, err := i.resolveCategories(ctx, items)
	if err != nil {
		return nil, err
	}

	total := len(items)
	result := &ImportResult{Total: total, Errors: map[string]string{}}

	// Outcomes are written even when ctx is cancelled mid-run.
	record := context.WithoutCancel(ctx)

	limit := i.concurrency
	if limit <= 0 {
		limit = total
	}
	sem := make(chan struct{}, limit)
	var (
		mu        sync.Mutex
		processed int64
		wg        sync.WaitGroup
	)

	i.reporter.Start(total)
	for _, item := range items {
		select {
		case <-ctx.Done():
			msg := ctx.Err().Error()
			mu.Lock()
			result.Failed++
			result.Errors[item.ID] = msg
			mu.Unlock()
			if mErr := i.store.MarkFailed(record, item.ID, msg); mErr != nil {
				logrus.WithError(mErr).Error("staging: recording failure")
			}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(it Item) {
			defer wg.Done()
			defer func() { <-sem }()

			remoteID, err := i.importItem(ctx, it, categoryIDs)
			mu.Lock()
			if err != nil {
				result.Failed++
				result.Errors[it.ID] = err.Error()
			} else {
				result.Imported++
			}
			mu.Unlock()

			if err != nil {
				logrus.WithError(err).WithField("item", it.Name).Warn("staging: import failed")
				if mErr := i.store.MarkFailed(record, it.ID, err.Error()); mErr != nil {
					logrus.WithError(mErr).Error("staging: recording failure")
				}
			} else if mErr := i.store.MarkImported(record, it.ID, remoteID); mErr != nil {
				logrus.WithError(mErr).Error("staging: recording import")
			}

			count := atomic.AddInt64(&processed, 1)
			i.reporter.Update(int(count), it.Name)
		}(item)
	}
	wg.Wait()
	i.reporter.Finish()

	if result.Failed > 0 {
		result.Message = fmt.Sprintf("Failed to import %d items", result.Failed)
	} else {
		result.Message = fmt.Sprintf("Imported %d items", result.Imported)
	}
	return result, nil
}

func (i *Importer) resolveCategories(ctx context.Context, items []Item) (map[string]string, error) {
	ids := make(map[string]string)
	for _, it := range items {
		for _, name := range it.Categories {
			if _, ok := ids[name]; ok {
				continue
			}
			cat, err := i.catalog.EnsureCategory(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("resolving category %s: %w", name, err)
			}
			ids[name] = cat.ID
		}
	}
	return ids, nil
}

func (i *Importer) importItem(ctx context.Context, it Item, categoryIDs map[string]string) (string, error) {
	rfa, err := os.Open(it.RFAPath)
	if err != nil {
		return "", fmt.Errorf("opening family file: %w", err)
	}
	defer rfa.Close()

	nf := catalog.NewFamily{
		Name:         it.Name,
		SKU:          it.SKU,
		Desc:         it.Desc,
		Freemium:     it.Freemium,
		Parametric:   it.Parametric,
		NestedFamily: it.NestedFamily,
		RFAName:      filepath.Base(it.RFAPath),
		RFA:          rfa,
	}
	for _, name := range it.Categories {
		nf.CategoryIDs = append(nf.CategoryIDs, categoryIDs[name])
	}

	if it.ThumbnailPath != "" {
		name, r, closer, err := i.openThumbnail(it.ThumbnailPath)
		if err != nil {
			return "", err
		}
		defer closer.Close()
		nf.ThumbnailName, nf.Thumbnail = name, r
	}

	f, err := i.catalog.CreateFamily(ctx, nf)
	if err != nil {
		return "", fmt.Errorf("creating family: %w", err)
	}
	return f.ID, nil
}

func (i *Importer) openThumbnail(path string) (string, io.Reader, io.Closer, error) {
	name := filepath.Base(path)
	if i.thumbnailSize > 0 {
		res, err := thumbnail.ResizeFile(path, i.thumbnailSize)
		if err == nil {
			return thumbnail.FileName(name, res), res.Reader(), io.NopCloser(nil), nil
		}
		// Formats the decoder does not know (webp) are uploaded as-is.
		logrus.WithError(err).WithField("file", name).Debug("staging: uploading original thumbnail")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("opening thumbnail: %w", err)
	}
	return name, f, f, nil
}
