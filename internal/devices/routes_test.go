package devices

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
)

type memRecorder struct{ changes []catalog.Change }

func (m *memRecorder) RecordChange(_ context.Context, c catalog.Change) {
	m.changes = append(m.changes, c)
}

func setupRouter(t *testing.T) (chi.Router, *memRecorder) {
	t.Helper()
	store := setupStore(t, 2)
	rec := &memRecorder{}
	r := chi.NewRouter()
	RegisterRoutes(r, store, func(r *http.Request) string { return r.Header.Get("X-User") }, rec)
	return r, rec
}

func call(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHTTPDevices(t *testing.T) {
	r, recorder := setupRouter(t)

	rec := call(r, http.MethodPost, "/api/devices", NewDevice{Name: "Laptop"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var d Device
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))

	assert.Equal(t, http.StatusOK, call(r, http.MethodPost, "/api/devices", NewDevice{Name: "Laptop"}).Code)
	assert.Equal(t, http.StatusCreated, call(r, http.MethodPost, "/api/devices", NewDevice{Name: "Desktop"}).Code)
	assert.Equal(t, http.StatusConflict, call(r, http.MethodPost, "/api/devices", NewDevice{Name: "Third"}).Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodPost, "/api/devices", NewDevice{}).Code)

	rec = call(r, http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Devices, 2)
	assert.Equal(t, "2 of 2", list.Label)

	assert.Equal(t, http.StatusNoContent, call(r, http.MethodPost, "/api/devices/"+d.ID+"/heartbeat", nil).Code)
	assert.Equal(t, http.StatusNoContent, call(r, http.MethodDelete, "/api/devices/"+d.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodDelete, "/api/devices/"+d.ID, nil).Code)

	require.Len(t, recorder.changes, 3)
	assert.Equal(t, "device_added", recorder.changes[0].Action)
	assert.Equal(t, "device_removed", recorder.changes[2].Action)
}
