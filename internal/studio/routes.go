package studio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/notifications"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
)

// KeyFunc picks the session key for a request.
type KeyFunc func(r *http.Request) string

// Hooks are notified after studio mutations. Every field may be nil.
type Hooks struct {
	Recorder catalog.ChangeRecorder
	Notifier *notifications.Dispatcher
	Events   progress.Publisher
}

// RegisterRoutes mounts studio endpoints under /api/studio.
func RegisterRoutes(r chi.Router, manager *Manager, services catalog.ServiceFunc, key KeyFunc, hooks Hooks) {
	session := func(r *http.Request) *Session { return manager.Get(key(r)) }

	r.Route("/api/studio", func(r chi.Router) {
		r.Get("/", handleState(session))
		r.Post("/load", handleLoad(session, services))
		r.Post("/select", handleSelect(session))
		r.Post("/select-all", handleSelectAll(session))
		r.Post("/selection-mode", handleSelectionMode(session))
		r.Post("/apply", handleApply(session, services, hooks))
		r.Put("/drafts/{id}", handlePutDraft(session))
		r.Delete("/drafts/{id}", handleDiscardDraft(session))
		r.Post("/drafts/{id}/save", handleSaveDraft(session, services, hooks))
	})
}

func handleState(session func(*http.Request) *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, session(r).Snapshot())
	}
}

type loadRequest struct {
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
	Search  string `json:"search"`
	Filter  string `json:"filter"`
}

func handleLoad(session func(*http.Request) *Session, services catalog.ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loadRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		filter, err := catalog.ParseFilter(req.Filter)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s := session(r)
		if err := s.Load(r.Context(), services(r), req.Page, req.PerPage); err != nil {
			writeBackendError(w, err)
			return
		}
		s.SetQuery(req.Search, filter)
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

type selectRequest struct {
	ID  string   `json:"id"`
	IDs []string `json:"ids"`
}

func handleSelect(session func(*http.Request) *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		s := session(r)
		switch {
		case req.ID != "":
			if _, err := s.Toggle(req.ID); err != nil {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
		case len(req.IDs) > 0:
			s.Select(req.IDs...)
		default:
			writeError(w, http.StatusBadRequest, "id or ids is required")
			return
		}
		writeJSON(w, http.StatusOK, selectionBody(s))
	}
}

func handleSelectAll(session func(*http.Request) *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := session(r)
		s.SelectAll()
		writeJSON(w, http.StatusOK, selectionBody(s))
	}
}

func handleSelectionMode(session func(*http.Request) *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		s := session(r)
		s.SetSelectionMode(req.Enabled)
		writeJSON(w, http.StatusOK, selectionBody(s))
	}
}

func selectionBody(s *Session) map[string]any {
	return map[string]any{
		"selected":      s.Selected(),
		"selectionMode": s.SelectionMode(),
	}
}

func handleApply(session func(*http.Request) *Session, services catalog.ServiceFunc, hooks Hooks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		s := session(r)
		ids := s.Selected()
		reporter := progress.NewEventReporter("bulk_apply", hooks.Events)
		result, err := s.ApplyBulk(r.Context(), services(r), req, reporter)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if hooks.Recorder != nil {
			payload, _ := req.Payload()
			hooks.Recorder.RecordChange(r.Context(), catalog.Change{
				Action:  "bulk_applied",
				Summary: fmt.Sprintf("Bulk %s on %d families (%d failed)", req.Action, result.Total, result.Failed),
				Payload: map[string]any{"ids": ids, "patch": payload},
			})
		}
		hooks.Notifier.DispatchAsync(r.Context(), notifications.BulkEvent(
			notifications.TypeBulkApplied, "Bulk edit", result.Failed, result.Total))

		writeJSON(w, http.StatusOK, result)
	}
}

func handlePutDraft(session func(*http.Request) *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s := session(r)

		if r.ContentLength == 0 {
			d, err := s.StartDraft(id)
			if err != nil {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, d)
			return
		}

		var d Draft
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.SetDraft(id, d); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleDiscardDraft(session func(*http.Request) *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session(r).DiscardDraft(chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSaveDraft(session func(*http.Request) *Session, services catalog.ServiceFunc, hooks Hooks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		f, payload, err := session(r).SaveDraft(r.Context(), services(r), id)
		if errors.Is(err, ErrNoDraft) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeBackendError(w, err)
			return
		}
		if hooks.Recorder != nil {
			hooks.Recorder.RecordChange(r.Context(), catalog.Change{
				Action:   "family_updated",
				RecordID: id,
				Summary:  fmt.Sprintf("Saved %s", f.Name),
				Payload:  payload,
			})
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeBackendError(w http.ResponseWriter, err error) {
	status := pocketbase.StatusOf(err)
	if status == 0 {
		logrus.WithError(err).Error("studio: backend request failed")
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}
