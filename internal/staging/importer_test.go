package staging

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/matcher"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase/pbtest"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
)

type countingReporter struct {
	mu      sync.Mutex
	total   int
	updates int
	done    bool
}

func (c *countingReporter) Start(total int) { c.total = total }
func (c *countingReporter) Update(int, string) {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
}
func (c *countingReporter) Finish() { c.done = true }

var _ progress.Reporter = (*countingReporter)(nil)

// writeUploadDir creates two families, one with a 64x32 thumbnail.
func writeUploadDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Chair_01.rfa"), []byte("chair-rfa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Desk.rfa"), []byte("desk-rfa"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 32))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Chair_thumb.png"), buf.Bytes(), 0o644))
	return dir
}

func stageDir(t *testing.T, s *Store, dir string) (*Batch, []Item) {
	t.Helper()
	matched, err := Scan(ScanOptions{RFADir: dir, Defaults: matcher.DefaultDefaults})
	require.NoError(t, err)
	b, err := s.ActiveBatch(context.Background(), "user1")
	require.NoError(t, err)
	items, err := s.AddItems(context.Background(), b.ID, matched)
	require.NoError(t, err)
	return b, items
}

func TestScan(t *testing.T) {
	dir := writeUploadDir(t)
	items, err := Scan(ScanOptions{RFADir: dir, Defaults: matcher.DefaultDefaults})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Chair_01", items[0].Name)
	assert.True(t, items[0].Matched)
	assert.Equal(t, filepath.Join(dir, "Chair_thumb.png"), items[0].Thumbnail.Path)
	assert.False(t, items[1].Matched)

	_, err = Scan(ScanOptions{})
	assert.Error(t, err)
}

func TestImport(t *testing.T) {
	s := setupStore(t)
	fake := pbtest.New(t)
	svc := catalog.NewService(pocketbase.New(fake.URL), 0)
	fake.Seed(catalog.CollectionCategories, pbtest.Record{"name": "CHAIRS"})

	b, items := stageDir(t, s, writeUploadDir(t))
	cats := []string{"CHAIRS", "OFFICE"}
	_, err := s.UpdateItem(context.Background(), b.ID, items[0].ID, ItemPatch{Categories: &cats})
	require.NoError(t, err)

	rep := &countingReporter{}
	imp := NewImporter(s, svc, WithConcurrency(2), WithThumbnailSize(16), WithReporter(rep))
	res, err := imp.Import(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, "Imported 2 items", res.Message)
	assert.Equal(t, 2, rep.total)
	assert.Equal(t, 2, rep.updates)
	assert.True(t, rep.done)

	// OFFICE did not exist and was created once.
	assert.Len(t, fake.All(catalog.CollectionCategories), 2)
	assert.Len(t, fake.All(catalog.CollectionFamilies), 2)

	chair, err := s.GetItem(context.Background(), items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusImported, chair.Status)
	rec := fake.Get(catalog.CollectionFamilies, chair.RemoteID)
	require.NotNil(t, rec)
	assert.Equal(t, "Chair_01", rec["name"])
	assert.Equal(t, "Chair_01.rfa", rec["rfa"])
	assert.Equal(t, "Chair_thumb.png", rec["thumbnail"])

	data, ok := fake.File(catalog.CollectionFamilies, chair.RemoteID, "Chair_thumb.png")
	require.True(t, ok)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width, "thumbnail is resized before upload")

	// Nothing left to import.
	_, err = imp.Import(context.Background(), b.ID)
	assert.ErrorIs(t, err, ErrNothingSelected)
}

func TestImportMissingFileFails(t *testing.T) {
	s := setupStore(t)
	fake := pbtest.New(t)
	svc := catalog.NewService(pocketbase.New(fake.URL), 0)

	dir := writeUploadDir(t)
	b, items := stageDir(t, s, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "Desk.rfa")))

	res, err := NewImporter(s, svc).Import(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "Failed to import 1 items", res.Message)
	assert.Contains(t, res.Errors[items[1].ID], "opening family file")

	desk, err := s.GetItem(context.Background(), items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, desk.Status)
	assert.True(t, desk.Selected)
	assert.Equal(t, 1, fake.Count(http.MethodPost, "/api/collections/families/records"))
}

// stalledCatalog blocks every upload until the context ends.
type stalledCatalog struct{}

func (stalledCatalog) EnsureCategory(_ context.Context, name string) (*catalog.Category, error) {
	return &catalog.Category{ID: "c-" + name, Name: name}, nil
}

func (stalledCatalog) CreateFamily(ctx context.Context, _ catalog.NewFamily) (*catalog.Family, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestImportRecordsFailuresAfterCancel(t *testing.T) {
	s := setupStore(t)
	b, items := stageDir(t, s, writeUploadDir(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := NewImporter(s, stalledCatalog{}, WithConcurrency(1), WithThumbnailSize(0)).Import(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, "Failed to import 2 items", res.Message)

	for _, it := range items {
		got, err := s.GetItem(context.Background(), it.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status, it.Name)
		assert.NotEmpty(t, got.Error, it.Name)
		assert.True(t, got.Selected, it.Name)
	}
}
