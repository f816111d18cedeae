package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type sink struct {
	mu     sync.Mutex
	events []Event
	status int
}

func (s *sink) list() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *sink) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var e Event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Errorf("decode: %v", err)
		}
		s.mu.Lock()
		s.events = append(s.events, e)
		status := s.status
		s.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatch(t *testing.T) {
	a, b := &sink{}, &sink{status: http.StatusInternalServerError}
	srvA, srvB := a.server(t), b.server(t)

	d := NewDispatcher([]string{srvA.URL, srvB.URL})
	d.Dispatch(context.Background(), BulkEvent(TypeBulkApplied, "Bulk edit", 2, 5))

	gotA, gotB := a.list(), b.list()
	if len(gotA) != 1 || len(gotB) != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", len(gotA), len(gotB))
	}
	got := gotA[0]
	if got.Type != TypeBulkApplied || got.Failed != 2 || got.Total != 5 {
		t.Errorf("event = %+v", got)
	}
	if got.Message != "Failed to update 2 items" {
		t.Errorf("Message = %q", got.Message)
	}
	if got.Time.IsZero() {
		t.Error("expected time to be set")
	}

	hist := d.History()
	if len(hist) != 2 {
		t.Fatalf("history = %d, want 2", len(hist))
	}
	// Newest first: the failing webhook was called last.
	if hist[0].URL != srvB.URL || hist[0].Error == "" || hist[0].Status != 500 {
		t.Errorf("hist[0] = %+v", hist[0])
	}
	if hist[1].Error != "" || hist[1].Status != http.StatusNoContent {
		t.Errorf("hist[1] = %+v", hist[1])
	}
}

func TestDispatch_UnreachableIsLoggedOnly(t *testing.T) {
	d := NewDispatcher([]string{"http://127.0.0.1:1/hook"})
	d.Dispatch(context.Background(), Event{Type: TypeTest})
	if h := d.History(); len(h) != 1 || h[0].Error == "" {
		t.Errorf("history = %+v", h)
	}
}

func TestDispatch_NilDispatcher(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(context.Background(), Event{})
	if d.Enabled() {
		t.Error("nil dispatcher should not be enabled")
	}
}

func TestDispatchAsync_DoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	got := make(chan Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		var e Event
		json.NewDecoder(r.Body).Decode(&e)
		got <- e
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(hook.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	d := NewDispatcher([]string{hook.URL})
	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		d.DispatchAsync(ctx, Event{Type: TypeImported})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("DispatchAsync blocked on the webhook")
	}

	// The caller's request is gone before the webhook answers.
	cancel()
	close(release)

	select {
	case e := <-got:
		if e.Type != TypeImported {
			t.Errorf("type = %q", e.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never received the event")
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(d.History()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	h := d.History()
	if len(h) != 1 || h[0].Error != "" || h[0].Status != http.StatusNoContent {
		t.Errorf("history = %+v", h)
	}
}

func TestDispatchAsync_NilDispatcher(t *testing.T) {
	var d *Dispatcher
	d.DispatchAsync(context.Background(), Event{})
}

func TestBulkEvent(t *testing.T) {
	tests := []struct {
		typ           EventType
		failed, total int
		want          string
	}{
		{TypeBulkApplied, 0, 3, "3 of 3 items succeeded"},
		{TypeBulkApplied, 1, 3, "Failed to update 1 items"},
		{TypeImported, 4, 9, "Failed to import 4 items"},
	}
	for _, tt := range tests {
		if got := BulkEvent(tt.typ, "x", tt.failed, tt.total).Message; got != tt.want {
			t.Errorf("BulkEvent(%s, %d, %d) = %q, want %q", tt.typ, tt.failed, tt.total, got, tt.want)
		}
	}
}

func TestHistoryBounded(t *testing.T) {
	d := NewDispatcher(nil)
	for i := 0; i < historySize+10; i++ {
		d.remember(Delivery{Status: i})
	}
	h := d.History()
	if len(h) != historySize {
		t.Fatalf("len = %d, want %d", len(h), historySize)
	}
	if h[0].Status != historySize+9 {
		t.Errorf("newest = %d", h[0].Status)
	}
}

func TestRoutes(t *testing.T) {
	s := &sink{}
	hook := s.server(t)

	r := chi.NewRouter()
	RegisterRoutes(r, NewDispatcher([]string{hook.URL}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/notifications/test", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if events := s.list(); len(events) != 1 || events[0].Type != TypeTest {
		t.Errorf("events = %+v", events)
	}

	resp, err = http.Get(srv.URL + "/api/notifications")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Webhooks   int        `json:"webhooks"`
		Deliveries []Delivery `json:"deliveries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Webhooks != 1 || len(body.Deliveries) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestRoutes_TestWithoutWebhooks(t *testing.T) {
	r := chi.NewRouter()
	RegisterRoutes(r, NewDispatcher(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/notifications/test", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
