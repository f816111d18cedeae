package mirror

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase/pbtest"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut map[string]bool
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}, failPut: map[string]bool{}}
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut[key] {
		return errors.New("bucket unavailable")
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func seedBackend(t *testing.T) (*pbtest.Server, string, string) {
	t.Helper()
	fake := pbtest.New(t)
	relIDs := fake.Seed(plugins.Collection, pbtest.Record{"version": "3.0.1", "installer": "installer_x1.exe"})
	fake.PutFile("col_plugin", relIDs[0], "installer_x1.exe", []byte("MZ-installer"))

	famIDs := fake.Seed(catalog.CollectionFamilies, pbtest.Record{"name": "Chair", "rfa": "chair.rfa", "thumbnail": "chair.png"})
	fake.PutFile("col_families", famIDs[0], "chair.rfa", []byte("rfa-bytes"))
	fake.PutFile("col_families", famIDs[0], "chair.png", []byte("png-bytes"))
	return fake, relIDs[0], famIDs[0]
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "plugins/1.2.0/ProRVT_v1.2.0_Setup.exe", PluginKey(&plugins.Release{Version: "1.2.0"}))
	assert.Equal(t, "families/abc/chair.rfa", FamilyKey("abc", "chair.rfa"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("a.PNG"))
	assert.Equal(t, "image/jpeg", ContentType("a.jpeg"))
	assert.Equal(t, "application/octet-stream", ContentType("a.rfa"))
	assert.Equal(t, "application/vnd.microsoft.portable-executable", ContentType("setup.exe"))
}

func TestRunPluginOnly(t *testing.T) {
	fake, _, _ := seedBackend(t)
	store := newMemStore()

	res, err := New(pocketbase.New(fake.URL), store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"plugins/3.0.1/ProRVT_v3.0.1_Setup.exe"}, res.Uploaded)
	assert.Equal(t, []byte("MZ-installer"), store.objects["plugins/3.0.1/ProRVT_v3.0.1_Setup.exe"])
	assert.Len(t, store.objects, 1)
}

func TestRunWithFamiliesSkipsExisting(t *testing.T) {
	fake, _, famID := seedBackend(t)
	store := newMemStore()
	m := New(pocketbase.New(fake.URL), store, WithFamilies(true), WithConcurrency(2))

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Uploaded, 3)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, "image/png", store.types[FamilyKey(famID, "chair.png")])

	res, err = m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Uploaded)
	assert.Len(t, res.Skipped, 3)
	assert.Equal(t, "Mirrored 0 objects (3 already present, 0 failed)", res.Message())
}

func TestRunCollectsFailures(t *testing.T) {
	fake, _, famID := seedBackend(t)
	store := newMemStore()
	store.failPut[FamilyKey(famID, "chair.rfa")] = true

	res, err := New(pocketbase.New(fake.URL), store, WithFamilies(true)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed())
	assert.Contains(t, res.Errors[FamilyKey(famID, "chair.rfa")], "bucket unavailable")
	assert.Len(t, res.Uploaded, 2)
}

func TestRunMissingFile(t *testing.T) {
	fake := pbtest.New(t)
	fake.Seed(plugins.Collection, pbtest.Record{"version": "1.0", "installer": "gone.exe"})

	res, err := New(pocketbase.New(fake.URL), newMemStore()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed())
}

func TestRunNoReleases(t *testing.T) {
	fake := pbtest.New(t)
	res, err := New(pocketbase.New(fake.URL), newMemStore()).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Uploaded)
	assert.Zero(t, res.Failed())
}
