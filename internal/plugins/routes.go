package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
)

// ServiceFunc returns a Service for the caller of r.
type ServiceFunc func(r *http.Request) *Service

// ReleaseView is a release as returned by the HTTP API.
type ReleaseView struct {
	Release
	FileName    string `json:"fileName"`
	SizeLabel   string `json:"sizeLabel"`
	CreatedDate string `json:"createdDate"`
	DownloadURL string `json:"downloadUrl"`
}

// Overview is the payload of the plugins page.
type Overview struct {
	Banner       string        `json:"banner,omitempty"`
	Latest       *ReleaseView  `json:"latest,omitempty"`
	Releases     []ReleaseView `json:"releases"`
	Requirements []string      `json:"requirements"`
	QRCodeURL    string        `json:"qrCodeUrl,omitempty"`
}

// RegisterRoutes mounts the plugin endpoints. siteURL is encoded in the QR
// code. recorder may be nil.
func RegisterRoutes(r chi.Router, services ServiceFunc, siteURL string, recorder catalog.ChangeRecorder) {
	r.Route("/api/plugins", func(r chi.Router) {
		r.Get("/", handleList(services, siteURL))
		r.Get("/latest", handleLatest(services))
		r.Get("/requirements", handleRequirements())
		r.Get("/qr", handleQR(siteURL))
		r.Get("/changelog", handleChangelogPage(services))
		r.Get("/{id}/changelog", handleChangelog(services))
	})
	r.Get("/api/download/plugin", handleDownload(services, recorder))
}

func (s *Service) view(r Release) ReleaseView {
	created := r.CreatedAt
	if created == "" {
		created = r.Created
	}
	return ReleaseView{
		Release:     r,
		FileName:    r.FriendlyFileName(),
		SizeLabel:   r.SizeLabel(),
		CreatedDate: FormatDate(created),
		DownloadURL: s.InstallerURL(&r),
	}
}

func handleList(services ServiceFunc, siteURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := services(r)
		releases, err := svc.List(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}

		out := Overview{
			Releases:     []ReleaseView{},
			Requirements: SystemRequirements,
		}
		if siteURL != "" {
			out.QRCodeURL = QRCodeURL(siteURL)
		}
		if len(releases) > 0 {
			latest := svc.view(releases[0])
			out.Latest = &latest
			out.Banner = Banner(&releases[0], time.Now())
		}

		matched := releases
		if term := r.URL.Query().Get("search"); term != "" {
			matched = Search(releases, term)
		}
		for _, rel := range matched {
			out.Releases = append(out.Releases, svc.view(rel))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleLatest(services ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := services(r)
		rel, err := svc.Latest(r.Context())
		if errors.Is(err, ErrNoReleases) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, svc.view(*rel))
	}
}

func handleRequirements() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SystemRequirements)
	}
}

func handleQR(siteURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			target = siteURL
		}
		if target == "" {
			writeError(w, http.StatusBadRequest, "site url is not configured")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": target, "image": QRCodeURL(target)})
	}
}

func handleChangelog(services ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel, err := services(r).Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeBackendError(w, err)
			return
		}
		html, err := RenderChangelog(rel.Updates)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"version": rel.Version, "html": html})
	}
}

func handleChangelogPage(services ServiceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		releases, err := services(r).List(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := WriteChangelogPage(w, releases); err != nil {
			logrus.WithError(err).Error("plugins: rendering changelog page")
		}
	}
}

// handleDownload redirects to the installer of ?version=, or of the latest
// release.
func handleDownload(services ServiceFunc, recorder catalog.ChangeRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := services(r)
		var (
			rel *Release
			err error
		)
		if v := r.URL.Query().Get("version"); v != "" {
			rel, err = svc.Find(r.Context(), v)
			if err != nil && pocketbase.StatusOf(err) == 0 {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
		} else {
			rel, err = svc.Latest(r.Context())
			if errors.Is(err, ErrNoReleases) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
		}
		if err != nil {
			writeBackendError(w, err)
			return
		}

		target := svc.InstallerURL(rel)
		if target == "" {
			writeError(w, http.StatusNotFound, fmt.Sprintf("plugin version %s has no installer", rel.Version))
			return
		}
		if recorder != nil {
			recorder.RecordChange(r.Context(), catalog.Change{
				Action:   "plugin_downloaded",
				RecordID: rel.ID,
				Summary:  "Downloaded " + rel.FriendlyFileName(),
			})
		}
		http.Redirect(w, r, target, http.StatusFound)
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
		logrus.WithError(err).Error("plugins: backend request failed")
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}
