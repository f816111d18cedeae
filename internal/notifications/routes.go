package notifications

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts notification endpoints under /api/notifications on the given router.
func RegisterRoutes(r chi.Router, dispatcher *Dispatcher) {
	r.Route("/api/notifications", func(r chi.Router) {
		r.Get("/", handleHistory(dispatcher))
		r.Post("/test", handleTest(dispatcher))
	})
}

func handleHistory(dispatcher *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"webhooks":   len(dispatcher.webhooks),
			"deliveries": dispatcher.History(),
		})
	}
}

func handleTest(dispatcher *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !dispatcher.Enabled() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no webhooks configured"})
			return
		}
		dispatcher.Dispatch(r.Context(), Event{
			Type:    TypeTest,
			Title:   "Test notification",
			Message: "Webhook delivery is working",
		})
		writeJSON(w, http.StatusOK, dispatcher.History()[:len(dispatcher.webhooks)])
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
