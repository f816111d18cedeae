package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestLogAndGetByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entry := Entry{
		ID:              "test-1",
		ActorType:       ActorUser,
		ActorID:         "user_abc",
		Action:          ActionFamilyUpdated,
		Scope:           ScopeFamily,
		ScopeID:         "fam1",
		Summary:         "Updated Office Chair",
		Detail:          "freemium changed",
		AffectedRecords: []string{"fam1"},
		PreviousValue:   `{"freemium":"free"}`,
		NewValue:        `{"freemium":"premium"}`,
	}

	if err := store.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	got, err := store.GetByID(ctx, "test-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if got.ActorID != "user_abc" {
		t.Errorf("ActorID = %q, want %q", got.ActorID, "user_abc")
	}
	if got.Action != ActionFamilyUpdated {
		t.Errorf("Action = %q, want %q", got.Action, ActionFamilyUpdated)
	}
	if got.Scope != ScopeFamily {
		t.Errorf("Scope = %q, want %q", got.Scope, ScopeFamily)
	}
	if got.PreviousValue != `{"freemium":"free"}` {
		t.Errorf("PreviousValue = %q", got.PreviousValue)
	}
	if got.NewValue != `{"freemium":"premium"}` {
		t.Errorf("NewValue = %q", got.NewValue)
	}
	if len(got.AffectedRecords) != 1 || got.AffectedRecords[0] != "fam1" {
		t.Errorf("AffectedRecords = %v, want [fam1]", got.AffectedRecords)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestLogDefaults(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Log(ctx, Entry{ActorID: "x", Action: ActionStaged, Scope: ScopeStaging}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID == "" {
		t.Error("expected generated ID")
	}
	if entries[0].ActorType != ActorSystem {
		t.Errorf("ActorType = %q, want system", entries[0].ActorType)
	}
	if entries[0].PreviousValue != "" {
		t.Errorf("PreviousValue = %q, want empty", entries[0].PreviousValue)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store := setupStore(t)
	if _, err := store.GetByID(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func seed(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	entries := []Entry{
		{ID: "e1", ActorID: "alice", Action: ActionFamilyUpdated, Scope: ScopeFamily, ScopeID: "f1", AffectedRecords: []string{"f1"}},
		{ID: "e2", ActorID: "bob", Action: ActionFamilyDeleted, Scope: ScopeFamily, ScopeID: "f2", AffectedRecords: []string{"f2"}},
		{ID: "e3", ActorID: "alice", Action: ActionBulkApplied, Scope: ScopeFamily, AffectedRecords: []string{"f1", "f3"}},
		{ID: "e4", ActorID: "alice", Action: ActionDeviceAdded, Scope: ScopeDevice, ScopeID: "d1"},
	}
	for _, e := range entries {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log %s: %v", e.ID, err)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	store := setupStore(t)
	seed(t, store)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter QueryFilter
		want   int
	}{
		{"all", QueryFilter{}, 4},
		{"by actor", QueryFilter{ActorID: "alice"}, 3},
		{"by scope", QueryFilter{Scope: ScopeFamily}, 3},
		{"by scope id", QueryFilter{ScopeID: "f2"}, 1},
		{"by action", QueryFilter{Action: ActionBulkApplied}, 1},
		{"by record", QueryFilter{AffectedRecord: "f1"}, 2},
		{"limit", QueryFilter{Limit: 2}, 2},
		{"offset", QueryFilter{Offset: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestQueryNewestFirst(t *testing.T) {
	store := setupStore(t)
	seed(t, store)

	got, err := store.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e4" {
		t.Errorf("Recent = %+v, want e4", got)
	}
}

func TestQuerySinceUntil(t *testing.T) {
	store := setupStore(t)
	seed(t, store)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	got, err := store.Query(ctx, QueryFilter{Since: &future})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("since future: got %d, want 0", len(got))
	}

	got, err = store.Query(ctx, QueryFilter{Since: &past, Until: &future})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("window: got %d, want 4", len(got))
	}
}

func TestDeleteBefore(t *testing.T) {
	store := setupStore(t)
	seed(t, store)
	ctx := context.Background()

	n, err := store.DeleteBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted %d, want 4", n)
	}
}

type ctxKey struct{}

func TestRecorder_RecordChange(t *testing.T) {
	store := setupStore(t)
	rec := NewRecorder(store, func(ctx context.Context) string {
		id, _ := ctx.Value(ctxKey{}).(string)
		return id
	})

	ctx := context.WithValue(context.Background(), ctxKey{}, "user_1")
	rec.RecordChange(ctx, catalog.Change{
		Action:   "family_updated",
		RecordID: "fam9",
		Summary:  "Updated Desk",
		Payload:  map[string]any{"parametric": true},
	})
	rec.RecordChange(context.Background(), catalog.Change{Action: "family_deleted", RecordID: "fam8"})

	entries, err := store.Query(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	deleted, updated := entries[0], entries[1]
	if updated.ActorType != ActorUser || updated.ActorID != "user_1" {
		t.Errorf("updated actor = %s/%s", updated.ActorType, updated.ActorID)
	}
	if updated.Scope != ScopeFamily || updated.ScopeID != "fam9" {
		t.Errorf("updated scope = %s/%s", updated.Scope, updated.ScopeID)
	}
	if updated.NewValue != `{"parametric":true}` {
		t.Errorf("NewValue = %q", updated.NewValue)
	}
	if deleted.ActorType != ActorSystem || deleted.ActorID != "rvtstudio" {
		t.Errorf("deleted actor = %s/%s", deleted.ActorType, deleted.ActorID)
	}
}

func TestRoutes(t *testing.T) {
	store := setupStore(t)
	seed(t, store)

	r := chi.NewRouter()
	RegisterRoutes(r, store)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/audit?actor=alice&limit=2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}

	resp2, err := http.Get(srv.URL + "/api/audit/e2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp2.Body.Close()
	var e Entry
	if err := json.NewDecoder(resp2.Body).Decode(&e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Action != ActionFamilyDeleted {
		t.Errorf("Action = %q", e.Action)
	}

	resp3, err := http.Get(srv.URL + "/api/audit/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp3.StatusCode)
	}
}

func TestScopeOf(t *testing.T) {
	cases := map[Action]Scope{
		ActionFamilyCreated:    ScopeFamily,
		ActionBulkApplied:      ScopeFamily,
		ActionImported:         ScopeStaging,
		ActionPluginDownloaded: ScopePlugin,
		ActionDeviceRemoved:    ScopeDevice,
		ActionProfileUpdated:   ScopeAccount,
	}
	for action, want := range cases {
		if got := ScopeOf(action); got != want {
			t.Errorf("ScopeOf(%s) = %s, want %s", action, got, want)
		}
	}
}
