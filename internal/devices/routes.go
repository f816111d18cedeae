package devices

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
)

// OwnerFunc returns the user id of the caller.
type OwnerFunc func(r *http.Request) string

type listResponse struct {
	Devices []Device `json:"devices"`
	Usage   Usage    `json:"usage"`
	Label   string   `json:"label"`
}

// RegisterRoutes mounts the device endpoints under /api/devices. recorder
// may be nil.
func RegisterRoutes(r chi.Router, store *Store, owner OwnerFunc, recorder catalog.ChangeRecorder) {
	r.Route("/api/devices", func(r chi.Router) {
		r.Get("/", handleList(store, owner))
		r.Post("/", handleRegister(store, owner, recorder))
		r.Post("/{id}/heartbeat", handleHeartbeat(store, owner))
		r.Delete("/{id}", handleRemove(store, owner, recorder))
	})
}

func handleList(store *Store, owner OwnerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := owner(r)
		list, err := store.List(r.Context(), user)
		if err != nil {
			internalError(w, err)
			return
		}
		usage := Usage{Used: len(list), Allowed: store.Max()}
		writeJSON(w, http.StatusOK, listResponse{Devices: list, Usage: usage, Label: usage.String()})
	}
}

func handleRegister(store *Store, owner OwnerFunc, recorder catalog.ChangeRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var nd NewDevice
		if err := json.NewDecoder(r.Body).Decode(&nd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		d, created, err := store.Register(r.Context(), owner(r), nd)
		switch {
		case errors.Is(err, ErrNameRequired):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, ErrLimitReached):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			internalError(w, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
			if recorder != nil {
				recorder.RecordChange(r.Context(), catalog.Change{
					Action:   "device_added",
					RecordID: d.ID,
					Summary:  "Registered device " + d.Name,
				})
			}
		}
		writeJSON(w, status, d)
	}
}

func handleHeartbeat(store *Store, owner OwnerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := store.Touch(r.Context(), owner(r), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRemove(store *Store, owner OwnerFunc, recorder catalog.ChangeRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := store.Remove(r.Context(), owner(r), id)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}
		if recorder != nil {
			recorder.RecordChange(r.Context(), catalog.Change{
				Action:   "device_removed",
				RecordID: id,
				Summary:  "Removed device " + id,
			})
		}
		w.WriteHeader(http.StatusNoContent)
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

func internalError(w http.ResponseWriter, err error) {
	logrus.WithError(err).Error("devices: request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
