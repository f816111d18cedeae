package staging

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/matcher"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase/pbtest"
)

func setupRouter(t *testing.T) (chi.Router, *Store, *pbtest.Server) {
	t.Helper()
	s := setupStore(t)
	fake := pbtest.New(t)
	client := pocketbase.New(fake.URL)

	r := chi.NewRouter()
	RegisterRoutes(r, RouteConfig{
		Store:     s,
		Services:  func(*http.Request) *catalog.Service { return catalog.NewService(client, 0) },
		Owner:     func(*http.Request) string { return "user1" },
		UploadDir: t.TempDir(),
		Defaults:  matcher.DefaultDefaults,
	})
	return r, s, fake
}

func call(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st stateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	return st
}

func TestHTTPScanEditImport(t *testing.T) {
	r, _, fake := setupRouter(t)
	dir := writeUploadDir(t)

	st := decodeState(t, call(t, r, http.MethodPost, "/api/staging/scan", scanRequest{RFADir: dir}))
	require.Len(t, st.Items, 2)
	assert.Equal(t, 1, st.Summary.Matched)
	assert.Equal(t, 1, st.Summary.Unmatched)
	assert.Equal(t, StepReview, st.Batch.Step)

	sku := "DK-9"
	w := call(t, r, http.MethodPatch, "/api/staging/"+st.Items[1].ID, ItemPatch{SKU: &sku})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	st = decodeState(t, call(t, r, http.MethodPost, "/api/staging/select", selectRequest{IDs: []string{st.Items[0].ID}, Selected: false}))
	assert.Equal(t, 1, st.Summary.Selected)

	st = decodeState(t, call(t, r, http.MethodPost, "/api/staging/step", map[string]int{"step": 4}))
	assert.Equal(t, StepCategories, st.Batch.Step)

	st = decodeState(t, call(t, r, http.MethodPost, "/api/staging/categories", map[string][]string{"categories": {"desks"}}))
	assert.Equal(t, []string{"DESKS"}, st.Items[1].Categories)
	assert.Equal(t, []string{}, st.Items[0].Categories)

	w = call(t, r, http.MethodPost, "/api/staging/import", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res ImportResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, 1, res.Imported)

	fams := fake.All(catalog.CollectionFamilies)
	require.Len(t, fams, 1)
	assert.Equal(t, "DK-9", fams[0]["SKU"])
}

func TestHTTPStepValidation(t *testing.T) {
	r, _, _ := setupRouter(t)
	dir := writeUploadDir(t)
	decodeState(t, call(t, r, http.MethodPost, "/api/staging/scan", scanRequest{RFADir: dir}))
	decodeState(t, call(t, r, http.MethodPost, "/api/staging/select", selectRequest{All: true}))

	w := call(t, r, http.MethodPost, "/api/staging/step", map[string]int{"step": 4})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "select at least one item")
}

func TestHTTPSuggestions(t *testing.T) {
	r, _, fake := setupRouter(t)
	fake.Seed(catalog.CollectionCategories, pbtest.Record{"name": "Sofas"})

	w := call(t, r, http.MethodGet, "/api/staging/suggestions?q=so", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, []string{"SOFAS"}, got)
}

func TestHTTPUpload(t *testing.T) {
	r, _, _ := setupRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, part := range map[string]string{"Sofa_A.rfa": "rfa", "notes.txt": "rfa", "sofa_1.png": "thumbnail"} {
		fw, err := mw.CreateFormFile(part, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("data"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/staging/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	st := decodeState(t, rec)
	require.Len(t, st.Items, 1)
	assert.Equal(t, "Sofa_A", st.Items[0].Name)
	assert.True(t, st.Items[0].Matched)
}

func TestHTTPClear(t *testing.T) {
	r, _, _ := setupRouter(t)
	decodeState(t, call(t, r, http.MethodPost, "/api/staging/scan", scanRequest{RFADir: writeUploadDir(t)}))

	w := call(t, r, http.MethodDelete, "/api/staging", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	st := decodeState(t, call(t, r, http.MethodGet, "/api/staging", nil))
	assert.Empty(t, st.Items)
}

func TestHTTPItemsScopedToOwner(t *testing.T) {
	s := setupStore(t)
	fake := pbtest.New(t)
	client := pocketbase.New(fake.URL)
	r := chi.NewRouter()
	RegisterRoutes(r, RouteConfig{
		Store:    s,
		Services: func(*http.Request) *catalog.Service { return catalog.NewService(client, 0) },
		Owner:    func(r *http.Request) string { return r.Header.Get("X-User") },
		Defaults: matcher.DefaultDefaults,
	})
	as := func(user, method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	st := decodeState(t, as("alice", http.MethodPost, "/api/staging/scan", scanRequest{RFADir: writeUploadDir(t)}))
	require.Len(t, st.Items, 2)
	target := st.Items[0].ID

	w := as("bob", http.MethodDelete, "/api/staging/"+target, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	sku := "BOB"
	w = as("bob", http.MethodPatch, "/api/staging/"+target, ItemPatch{SKU: &sku})
	assert.Equal(t, http.StatusNotFound, w.Code)

	st = decodeState(t, as("alice", http.MethodGet, "/api/staging", nil))
	require.Len(t, st.Items, 2)
	assert.Empty(t, st.Items[0].SKU)

	w = as("alice", http.MethodDelete, "/api/staging/"+target, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
