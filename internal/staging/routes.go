package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/matcher"
	"github.com/ziadkadry99/rvt-studio/internal/notifications"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
)

// maxUploadMemory is the multipart memory limit before parts spill to disk.
const maxUploadMemory = 64 << 20

// RouteConfig wires the staging endpoints.
type RouteConfig struct {
	Store         *Store
	Services      catalog.ServiceFunc
	Owner         func(r *http.Request) string
	UploadDir     string
	Defaults      matcher.Defaults
	Include       []string
	Exclude       []string
	Concurrency   int
	ThumbnailSize int

	Recorder catalog.ChangeRecorder
	Notifier *notifications.Dispatcher
	Events   progress.Publisher
}

// RegisterRoutes mounts staging endpoints under /api/staging.
func RegisterRoutes(r chi.Router, cfg RouteConfig) {
	r.Route("/api/staging", func(r chi.Router) {
		r.Get("/", handleGet(cfg))
		r.Delete("/", handleClear(cfg))
		r.Post("/scan", handleScan(cfg))
		r.Post("/upload", handleUpload(cfg))
		r.Post("/select", handleSelect(cfg))
		r.Post("/step", handleStep(cfg))
		r.Post("/categories", handleCategories(cfg))
		r.Get("/suggestions", handleSuggestions(cfg))
		r.Post("/import", handleImport(cfg))
		r.Patch("/{id}", handleUpdateItem(cfg))
		r.Delete("/{id}", handleDeleteItem(cfg))
	})
}

type stateResponse struct {
	Batch   *Batch   `json:"batch"`
	Items   []Item   `json:"items"`
	Summary *Summary `json:"summary"`
}

func batchFor(cfg RouteConfig, w http.ResponseWriter, r *http.Request) (*Batch, bool) {
	b, err := cfg.Store.ActiveBatch(r.Context(), cfg.Owner(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return b, true
}

func writeState(cfg RouteConfig, w http.ResponseWriter, r *http.Request, batchID string) {
	ctx := r.Context()
	b, err := cfg.Store.GetBatch(ctx, batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items, err := cfg.Store.ListItems(ctx, batchID, ItemFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sum, err := cfg.Store.Summary(ctx, batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{Batch: b, Items: items, Summary: sum})
}

func handleGet(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		writeState(cfg, w, r, b.ID)
	}
}

func handleClear(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		if err := cfg.Store.Clear(r.Context(), b.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if cfg.UploadDir != "" {
			if err := os.RemoveAll(filepath.Join(cfg.UploadDir, b.ID)); err != nil {
				logrus.WithError(err).Warn("staging: removing uploads")
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type scanRequest struct {
	RFADir       string `json:"rfa_dir"`
	ThumbnailDir string `json:"thumbnail_dir"`
}

func handleScan(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		matched, err := Scan(ScanOptions{
			RFADir:       req.RFADir,
			ThumbnailDir: req.ThumbnailDir,
			Include:      cfg.Include,
			Exclude:      cfg.Exclude,
			Defaults:     cfg.Defaults,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		stage(cfg, w, r, matched)
	}
}

func stage(cfg RouteConfig, w http.ResponseWriter, r *http.Request, matched []matcher.Item) {
	b, ok := batchFor(cfg, w, r)
	if !ok {
		return
	}
	if _, err := cfg.Store.AddItems(r.Context(), b.ID, matched); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cfg.Recorder != nil && len(matched) > 0 {
		sum := matcher.Summarize(matched)
		cfg.Recorder.RecordChange(r.Context(), catalog.Change{
			Action:  "staged",
			Summary: fmt.Sprintf("Staged %d families (%d without thumbnail)", sum.Total, sum.Unmatched),
		})
	}
	writeState(cfg, w, r, b.ID)
}

// handleUpload accepts browser uploads: "rfa" and "thumbnail" file parts.
func handleUpload(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.UploadDir == "" {
			writeError(w, http.StatusNotImplemented, "uploads are disabled")
			return
		}
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		dir := filepath.Join(cfg.UploadDir, b.ID)

		rfas, err := saveParts(dir, r.MultipartForm.File["rfa"])
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		thumbs, err := saveParts(dir, r.MultipartForm.File["thumbnail"])
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		rfas = matcher.FilterRFAs(rfas)
		if len(rfas) == 0 {
			writeError(w, http.StatusBadRequest, "no .rfa files uploaded")
			return
		}
		stage(cfg, w, r, matcher.Match(rfas, matcher.FilterImages(thumbs), cfg.Defaults))
	}
}

func saveParts(dir string, headers []*multipart.FileHeader) ([]matcher.FileRef, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	refs := make([]matcher.FileRef, 0, len(headers))
	for _, fh := range headers {
		name := filepath.Base(fh.Filename)
		path := filepath.Join(dir, name)
		if err := savePart(fh, path); err != nil {
			return nil, err
		}
		ct := fh.Header.Get("Content-Type")
		if ct == "application/octet-stream" {
			ct = ""
		}
		refs = append(refs, matcher.FileRef{
			Name:        name,
			Path:        path,
			Size:        fh.Size,
			ContentType: ct,
		})
	}
	return refs, nil
}

func savePart(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	defer src.Close()
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving %s: %w", fh.Filename, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("saving %s: %w", fh.Filename, err)
	}
	return dst.Close()
}

type selectRequest struct {
	IDs      []string `json:"ids"`
	Selected bool     `json:"selected"`
	All      bool     `json:"all"`
}

func handleSelect(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		var err error
		if req.All {
			_, err = cfg.Store.ToggleAll(r.Context(), b.ID)
		} else {
			err = cfg.Store.SetSelected(r.Context(), b.ID, req.IDs, req.Selected)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeState(cfg, w, r, b.ID)
	}
}

func handleStep(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Step Step `json:"step"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		err := cfg.Store.SetStep(r.Context(), b.ID, req.Step)
		switch {
		case errors.Is(err, ErrInvalidStep), errors.Is(err, ErrNothingSelected), errors.Is(err, ErrNoItems):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeState(cfg, w, r, b.ID)
	}
}

func handleCategories(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Categories []string `json:"categories"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		if _, err := cfg.Store.ApplyCategories(r.Context(), b.ID, req.Categories); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeState(cfg, w, r, b.ID)
	}
}

func handleSuggestions(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		var remote []string
		if cfg.Services != nil {
			cats, err := cfg.Services(r).ListCategories(r.Context())
			if err != nil {
				logrus.WithError(err).Debug("staging: listing backend categories")
			}
			for _, c := range cats {
				remote = append(remote, c.Name)
			}
		}
		writeJSON(w, http.StatusOK, Suggestions(r.URL.Query().Get("q"), b.Categories, remote...))
	}
}

func handleImport(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		imp := NewImporter(cfg.Store, cfg.Services(r),
			WithConcurrency(cfg.Concurrency),
			WithThumbnailSize(cfg.ThumbnailSize),
			WithReporter(progress.NewEventReporter("import", cfg.Events)),
		)
		res, err := imp.Import(r.Context(), b.ID)
		if errors.Is(err, ErrNothingSelected) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if cfg.Recorder != nil {
			cfg.Recorder.RecordChange(r.Context(), catalog.Change{
				Action:  "imported",
				Summary: fmt.Sprintf("Imported %d of %d families", res.Imported, res.Total),
			})
		}
		cfg.Notifier.DispatchAsync(r.Context(), notifications.BulkEvent(
			notifications.TypeImported, "Bulk upload", res.Failed, res.Total))
		writeJSON(w, http.StatusOK, res)
	}
}

func handleUpdateItem(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch ItemPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		it, err := cfg.Store.UpdateItem(r.Context(), b.ID, chi.URLParam(r, "id"), patch)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func handleDeleteItem(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := batchFor(cfg, w, r)
		if !ok {
			return
		}
		err := cfg.Store.DeleteItem(r.Context(), b.ID, chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
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
