package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/rvt-studio/internal/audit"
	"github.com/ziadkadry99/rvt-studio/internal/auth"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/db"
	"github.com/ziadkadry99/rvt-studio/internal/devices"
	"github.com/ziadkadry99/rvt-studio/internal/matcher"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase/pbtest"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
	"github.com/ziadkadry99/rvt-studio/internal/staging"
)

type fixture struct {
	dash    *Dashboard
	router  chi.Router
	fake    *pbtest.Server
	userID  string
	audit   *audit.Store
	devices *devices.Store
	staging *staging.Store
}

func setupTest(t *testing.T) *fixture {
	t.Helper()

	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	fake := pbtest.New(t)
	client := pocketbase.New(fake.URL)
	f := &fixture{
		fake:    fake,
		audit:   audit.NewStore(database),
		devices: devices.NewStore(database, 5),
		staging: staging.NewStore(database),
	}
	f.userID = fake.AddUser("ana@example.com", "secret77", pbtest.Record{"subcription": "premium"})

	f.dash = New(Sources{
		Catalog: func(*http.Request) *catalog.Service { return catalog.NewService(client, 0) },
		Plugins: func(*http.Request) *plugins.Service { return plugins.NewService(client) },
		Account: func(*http.Request) *auth.Service { return auth.NewService(client) },
		Staging: f.staging,
		Devices: f.devices,
		Audit:   f.audit,
		Owner:   func(r *http.Request) string { return r.Header.Get("X-User") },
	}, nil)
	f.router = chi.NewRouter()
	f.dash.RegisterRoutes(f.router)
	return f
}

func (f *fixture) get(path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestStatsEndpoint(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	catIDs := f.fake.Seed(catalog.CollectionCategories, pbtest.Record{"name": "CHAIRS"}, pbtest.Record{"name": "TABLES"})
	f.fake.Seed(catalog.CollectionCategoryStats,
		pbtest.Record{"name": "CHAIRS", "family_count": 8},
		pbtest.Record{"name": "TABLES", "family_count": 2},
	)
	f.fake.Seed(catalog.CollectionFamilies,
		pbtest.Record{"name": "Chair", "category": []string{catIDs[0]}},
		pbtest.Record{"name": "Desk", "category": []string{catIDs[1]}},
		pbtest.Record{"name": "Stool", "category": []string{catIDs[0]}},
	)
	f.fake.Seed(plugins.Collection, pbtest.Record{"version": "2.1.0", "installer": "setup.exe"})

	_, _, err := f.devices.Register(ctx, f.userID, devices.NewDevice{Name: "Work Laptop"})
	require.NoError(t, err)
	batch, err := f.staging.ActiveBatch(ctx, f.userID)
	require.NoError(t, err)
	_, err = f.staging.AddItems(ctx, batch.ID, []matcher.Item{
		{Name: "Chair", RFA: matcher.FileRef{Name: "Chair.rfa", Path: "/x/Chair.rfa"}},
	})
	require.NoError(t, err)
	require.NoError(t, f.audit.Log(ctx, audit.Entry{ActorID: f.userID, Action: audit.ActionFamilyUpdated, Scope: audit.ScopeFamily, Summary: "Updated Chair"}))

	w := f.get("/api/dashboard/stats", f.userID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stats statsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Empty(t, stats.Warnings)
	assert.Equal(t, 3, stats.Families)
	assert.Equal(t, 2, stats.Categories)
	require.Len(t, stats.TopCategories, 2)
	assert.Equal(t, "CHAIRS", stats.TopCategories[0].Name)
	assert.Equal(t, 100.0, stats.TopCategories[0].BarWidth)
	assert.Equal(t, 25.0, stats.TopCategories[1].BarWidth)
	require.NotNil(t, stats.LatestPlugin)
	assert.Equal(t, "ProRVT_v2.1.0_Setup.exe", stats.LatestPlugin.FileName)
	assert.Equal(t, "1 of 5", stats.DevicesLabel)
	assert.Equal(t, "premium", stats.Subscription)
	require.NotNil(t, stats.Staging)
	assert.Equal(t, 1, stats.Staging.Total)
	require.Len(t, stats.RecentActivity, 1)
	assert.Equal(t, "Updated Chair", stats.RecentActivity[0].Summary)
}

func TestStatsAnonymous(t *testing.T) {
	f := setupTest(t)

	w := f.get("/api/dashboard/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats statsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Nil(t, stats.Staging)
	assert.Nil(t, stats.Devices)
	assert.Nil(t, stats.LatestPlugin, "no releases yet")
	assert.Empty(t, stats.Subscription)
	assert.NotNil(t, stats.TopCategories)
}

func TestStatsReportsBackendFailures(t *testing.T) {
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	dead := pocketbase.New("http://127.0.0.1:1", pocketbase.WithTimeout(time.Second))
	d := New(Sources{
		Catalog: func(*http.Request) *catalog.Service { return catalog.NewService(dead, 0) },
		Audit:   audit.NewStore(database),
	}, nil)
	r := chi.NewRouter()
	d.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats statsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Contains(t, stats.Warnings, "families")
	assert.Contains(t, stats.Warnings, "categories")
	assert.NotContains(t, stats.Warnings, "local")
}

func TestRecentEndpoint(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, f.audit.Log(ctx, audit.Entry{ActorID: "x", Action: audit.ActionStaged, Scope: audit.ScopeStaging}))
	}

	var entries []audit.Entry
	require.NoError(t, json.NewDecoder(f.get("/api/dashboard/recent", "").Body).Decode(&entries))
	assert.Len(t, entries, recentLimit)

	require.NoError(t, json.NewDecoder(f.get("/api/dashboard/recent?limit=3", "").Body).Decode(&entries))
	assert.Len(t, entries, 3)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) progress.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var e progress.Event
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestWebSocketBroadcast(t *testing.T) {
	f := setupTest(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	hub := f.dash.Hub()
	hub.Publish(progress.Event{Kind: "import", Phase: progress.PhaseStart, Total: 2})

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, progress.PhaseStart, readEvent(t, a).Phase, "replayed")
	assert.Equal(t, progress.PhaseStart, readEvent(t, b).Phase, "replayed")

	reporter := progress.NewEventReporter("import", hub)
	reporter.Update(1, "Chair.rfa")

	for _, conn := range []*websocket.Conn{a, b} {
		e := readEvent(t, conn)
		assert.Equal(t, "import", e.Kind)
		assert.Equal(t, progress.PhaseProgress, e.Phase)
		assert.Equal(t, "Chair.rfa", e.Message)
	}

	a.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubReplayLimit(t *testing.T) {
	hub := NewHub()
	for i := 0; i < replaySize+10; i++ {
		hub.Publish(progress.Event{Kind: "bulk", Current: i})
	}
	recent := hub.Recent()
	require.Len(t, recent, replaySize)
	assert.Equal(t, 10, recent[0].Current)
	assert.False(t, recent[0].Time.IsZero())

	hub.Close()
	hub.Publish(progress.Event{Kind: "bulk"})
	assert.Len(t, hub.Recent(), replaySize)
}

func TestEventsEndpoint(t *testing.T) {
	f := setupTest(t)
	f.dash.Hub().Publish(progress.Event{Kind: "download", Phase: progress.PhaseFinish})

	var events []progress.Event
	require.NoError(t, json.NewDecoder(f.get("/api/dashboard/events", "").Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "download", events[0].Kind)
}

func TestServeIndex(t *testing.T) {
	f := setupTest(t)

	w := f.get("/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "RVT Studio Dashboard")
	assert.Contains(t, w.Body.String(), "/ws/events")
}
