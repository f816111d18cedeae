package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/rvt-studio/internal/audit"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/config"
	"github.com/ziadkadry99/rvt-studio/internal/db"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase/pbtest"
)

func setupServer(t *testing.T, mutate ...func(*config.Config)) (*Server, *pbtest.Server) {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	fake := pbtest.New(t)
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	for _, m := range mutate {
		m(cfg)
	}
	srv := New(cfg, database, pocketbase.New(fake.URL))
	t.Cleanup(srv.Dashboard().Hub().Close)
	return srv, fake
}

func do(srv *Server, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(srv, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCORSHeaders(t *testing.T) {
	srv, _ := setupServer(t, func(c *config.Config) { c.Server.AllowAllOrigins = true })

	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCatalogReadsArePublic(t *testing.T) {
	srv, fake := setupServer(t)
	fake.Seed(catalog.CollectionFamilies, pbtest.Record{"name": "Chair", "freemium": "free"})

	w := do(srv, http.MethodGet, "/api/families", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Chair"`)
}

func TestCatalogWritesNeedSession(t *testing.T) {
	srv, fake := setupServer(t)
	ids := fake.Seed(catalog.CollectionFamilies, pbtest.Record{"name": "Chair", "freemium": "free"})
	path := "/api/families/" + ids[0]

	w := do(srv, http.MethodPatch, path, "", strings.NewReader(`{"freemium":"premium"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := pbtest.Token("u1", -time.Minute)
	w = do(srv, http.MethodPatch, path, expired, strings.NewReader(`{"freemium":"premium"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "free", fake.Get(catalog.CollectionFamilies, ids[0])["freemium"])
}

func TestUpdateForwardsTokenAndAudits(t *testing.T) {
	srv, fake := setupServer(t)
	ids := fake.Seed(catalog.CollectionFamilies, pbtest.Record{"name": "Chair", "freemium": "free"})
	token := pbtest.Token("user1", time.Hour)

	w := do(srv, http.MethodPatch, "/api/families/"+ids[0], token, strings.NewReader(`{"freemium":"premium"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "premium", fake.Get(catalog.CollectionFamilies, ids[0])["freemium"])
	assert.Contains(t, fake.AuthHeaders(), token)

	w = do(srv, http.MethodGet, "/api/audit?action=family_updated", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "user1", entries[0].ActorID)
	assert.Equal(t, audit.ScopeFamily, entries[0].Scope)
}

func TestProtectedGroups(t *testing.T) {
	srv, _ := setupServer(t)

	for _, path := range []string{"/api/studio", "/api/staging", "/api/devices", "/api/audit", "/api/notifications"} {
		w := do(srv, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestLogoutDropsStudioSession(t *testing.T) {
	srv, fake := setupServer(t)
	fake.Seed(catalog.CollectionFamilies, pbtest.Record{"name": "Chair"})
	token := pbtest.Token("user1", time.Hour)

	w := do(srv, http.MethodPost, "/api/studio/load", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, srv.Sessions().Len())

	w = do(srv, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, srv.Sessions().Len())
}

func TestDevicesAreScopedToCaller(t *testing.T) {
	srv, _ := setupServer(t)
	alice := pbtest.Token("alice", time.Hour)
	bob := pbtest.Token("bob", time.Hour)

	w := do(srv, http.MethodPost, "/api/devices", alice, strings.NewReader(`{"name":"WORKSTATION-1"}`))
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(srv, http.MethodGet, "/api/devices", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "WORKSTATION-1")

	w = do(srv, http.MethodGet, "/api/devices", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "WORKSTATION-1")
}

func TestPluginDownloadRedirect(t *testing.T) {
	srv, fake := setupServer(t)
	fake.Seed(plugins.Collection, pbtest.Record{"version": "1.0.0", "installer": "setup_a.exe"})

	w := do(srv, http.MethodGet, "/api/download/plugin", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "setup_a.exe")
}

func TestDashboardIndex(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(srv, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "RVT Studio Dashboard")
}

func TestRequestTimeoutSkipsLongRunningRoutes(t *testing.T) {
	var hasDeadline bool
	h := requestTimeout(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/families", nil))
	assert.True(t, hasDeadline)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/staging/import", nil))
	assert.False(t, hasDeadline)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/staging/upload/", nil))
	assert.False(t, hasDeadline)
}
