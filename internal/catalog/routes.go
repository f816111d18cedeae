package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
)

// ServiceFunc returns a Service authenticated as the caller of r.
type ServiceFunc func(r *http.Request) *Service

// Change describes a successful mutation. RecordID names the family, or the
// plugin release, device or batch the action applies to.
type Change struct {
	Action   string
	RecordID string
	Summary  string
	Payload  any
}

// ChangeRecorder is notified after every successful mutation.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, change Change)
}

// FamilyView is a family as returned by the HTTP API.
type FamilyView struct {
	Family
	ThumbnailURL string `json:"thumbnailUrl"`
	RFAURL       string `json:"rfaUrl,omitempty"`
}

// TopCategory is a category bar in the studio overview.
type TopCategory struct {
	CategoryStat
	BarWidth float64 `json:"barWidth"`
}

// RegisterRoutes mounts catalog endpoints under /api/families and
// /api/categories. recorder may be nil.
func RegisterRoutes(r chi.Router, services ServiceFunc, recorder ChangeRecorder) {
	r.Route("/api/families", func(r chi.Router) {
		r.Get("/", handleList(services))
		r.Post("/", handleCreate(services, recorder))
		r.Get("/discover", handleDiscover(services))
		r.Get("/{id}", handleGet(services))
		r.Patch("/{id}", handleUpdate(services, recorder))
		r.Delete("/{id}", handleDelete(services, recorder))
	})
	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", handleCategories(services))
		r.Get("/stats", handleCategoryStats(services))
		r.Get("/top", handleTopCategories(services))
	})
}

func (s *Service) view(f Family) FamilyView {
	return FamilyView{Family: f, ThumbnailURL: s.ThumbnailURL(&f), RFAURL: s.RFAURL(&f)}
}

func handleList(services ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter, err := ParseFilter(q.Get("filter"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		page, _ := strconv.Atoi(q.Get("page"))
		perPage, _ := strconv.Atoi(q.Get("perPage"))

		svc := services(r)
		res, err := svc.ListFamilies(r.Context(), page, perPage)
		if err != nil {
			writeBackendError(w, err)
			return
		}

		items := FilterFamilies(res.Items, q.Get("search"), filter)
		views := make([]FamilyView, 0, len(items))
		for _, f := range items {
			views = append(views, svc.view(f))
		}

		writeJSON(w, http.StatusOK, pocketbase.ListResult[FamilyView]{
			Page:       res.Page,
			PerPage:    res.PerPage,
			TotalItems: res.TotalItems,
			TotalPages: res.TotalPages,
			Items:      views,
		})
	}
}

func handleDiscover(services ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		svc := services(r)
		all, err := svc.AllFamilies(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}

		items := Discover(all, DiscoverQuery{
			Search:     q.Get("search"),
			Tier:       q.Get("tier"),
			Descending: q.Get("sort") == "descending",
		})
		views := make([]FamilyView, 0, len(items))
		for _, f := range items {
			views = append(views, svc.view(f))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGet(services ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := services(r)
		f, err := svc.GetFamily(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, svc.view(*f))
	}
}

func handleUpdate(services ServiceFunc, recorder ChangeRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(patch) == 0 {
			writeError(w, http.StatusBadRequest, "empty update")
			return
		}

		id := chi.URLParam(r, "id")
		svc := services(r)
		f, err := svc.UpdateFamily(r.Context(), id, patch)
		if err != nil {
			writeBackendError(w, err)
			return
		}
		if recorder != nil {
			recorder.RecordChange(r.Context(), Change{
				Action:   "family_updated",
				RecordID: id,
				Summary:  fmt.Sprintf("Updated %s", f.Name),
				Payload:  patch,
			})
		}
		writeJSON(w, http.StatusOK, svc.view(*f))
	}
}

func handleDelete(services ServiceFunc, recorder ChangeRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := services(r).DeleteFamily(r.Context(), id); err != nil {
			writeBackendError(w, err)
			return
		}
		if recorder != nil {
			recorder.RecordChange(r.Context(), Change{
				Action:   "family_deleted",
				RecordID: id,
				Summary:  "Deleted family " + id,
			})
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCreate(services ServiceFunc, recorder ChangeRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "expected multipart form")
			return
		}

		rfa, rfaHeader, err := r.FormFile("rfa")
		if err != nil {
			writeError(w, http.StatusBadRequest, "rfa file is required")
			return
		}
		defer rfa.Close()

		nf := NewFamily{
			Name:          r.FormValue("name"),
			SKU:           r.FormValue("SKU"),
			Desc:          r.FormValue("desc"),
			Freemium:      r.FormValue("freemium"),
			Parametric:    formBool(r.FormValue("parametric"), true),
			NestedFamily:  formBool(r.FormValue("nested_family"), true),
			CategoryIDs:   r.MultipartForm.Value["category"],
			Vendor:        r.FormValue("vendor"),
			Specification: r.FormValue("specification"),
			RFAName:       rfaHeader.Filename,
			RFA:           rfa,
		}
		if nf.Name == "" {
			nf.Name = strings.TrimSuffix(rfaHeader.Filename, ".rfa")
		}
		if thumb, hdr, err := r.FormFile("thumbnail"); err == nil {
			defer thumb.Close()
			nf.Thumbnail = thumb
			nf.ThumbnailName = hdr.Filename
		}

		svc := services(r)
		f, err := svc.CreateFamily(r.Context(), nf)
		if err != nil {
			writeBackendError(w, err)
			return
		}
		if recorder != nil {
			recorder.RecordChange(r.Context(), Change{
				Action:   "family_created",
				RecordID: f.ID,
				Summary:  fmt.Sprintf("Created %s", f.Name),
			})
		}
		writeJSON(w, http.StatusCreated, svc.view(*f))
	}
}

func handleCategories(services ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cats, err := services(r).ListCategories(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cats)
	}
}

func handleCategoryStats(services ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := services(r).CategoryStats(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleTopCategories(services ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 3
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		stats, err := services(r).CategoryStats(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, TopCategoryBars(stats, limit))
	}
}

// TopCategoryBars returns the top n categories with their bar widths.
func TopCategoryBars(stats []CategoryStat, n int) []TopCategory {
	max := MaxFamilyCount(stats)
	top := TopCategories(stats, n)
	out := make([]TopCategory, 0, len(top))
	for _, s := range top {
		out = append(out, TopCategory{CategoryStat: s, BarWidth: BarWidth(s.FamilyCount, max)})
	}
	return out
}

func formBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeBackendError forwards the backend's status when it has one.
func writeBackendError(w http.ResponseWriter, err error) {
	status := pocketbase.StatusOf(err)
	if status == 0 {
		logrus.WithError(err).Error("catalog: backend request failed")
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}
