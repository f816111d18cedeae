package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/rvt-studio/internal/audit"
	"github.com/ziadkadry99/rvt-studio/internal/auth"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/config"
	"github.com/ziadkadry99/rvt-studio/internal/dashboard"
	"github.com/ziadkadry99/rvt-studio/internal/db"
	"github.com/ziadkadry99/rvt-studio/internal/devices"
	"github.com/ziadkadry99/rvt-studio/internal/matcher"
	"github.com/ziadkadry99/rvt-studio/internal/notifications"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
	"github.com/ziadkadry99/rvt-studio/internal/staging"
	"github.com/ziadkadry99/rvt-studio/internal/studio"
)

// Server is the backend-for-frontend in front of the catalog backend.
type Server struct {
	cfg        *config.Config
	db         *db.DB
	client     *pocketbase.Client
	audit      *audit.Store
	devices    *devices.Store
	staging    *staging.Store
	sessions   *studio.Manager
	notifier   *notifications.Dispatcher
	dashboard  *dashboard.Dashboard
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server. client is the anonymous backend client; each
// request works on a copy carrying the caller's token.
func New(cfg *config.Config, database *db.DB, client *pocketbase.Client) *Server {
	s := &Server{
		cfg:      cfg,
		db:       database,
		client:   client,
		audit:    audit.NewStore(database),
		devices:  devices.NewStore(database, cfg.Plugin.MaxDevices),
		staging:  staging.NewStore(database),
		sessions: studio.NewManager(),
		notifier: notifications.NewDispatcher(cfg.Webhooks),
	}

	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(requestTimeout(60 * time.Second))

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.Server.AllowAllOrigins {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))
	r.Use(auth.Inspect)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	recorder := audit.NewRecorder(s.audit, auth.UserID)
	services := s.catalogService
	owner := func(r *http.Request) string { return auth.UserID(r.Context()) }

	s.dashboard = dashboard.New(dashboard.Sources{
		Catalog: services,
		Plugins: s.pluginService,
		Account: s.accountService,
		Staging: s.staging,
		Devices: s.devices,
		Audit:   s.audit,
		Owner:   owner,
	}, nil)
	hub := s.dashboard.Hub()

	auth.RegisterRoutes(r, auth.RouteConfig{
		Client:   s.client,
		Recorder: recorder,
		OnLogout: s.sessions.Drop,
	})
	plugins.RegisterRoutes(r, s.pluginService, s.cfg.Plugin.SiteURL, recorder)
	s.dashboard.RegisterRoutes(r)

	// Catalog reads are public; writes need a session.
	r.Group(func(r chi.Router) {
		r.Use(requireForWrites)
		catalog.RegisterRoutes(r, services, recorder)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Require)

		studio.RegisterRoutes(r, s.sessions, services,
			func(r *http.Request) string { return auth.Token(r.Context()) },
			studio.Hooks{Recorder: recorder, Notifier: s.notifier, Events: hub})

		staging.RegisterRoutes(r, staging.RouteConfig{
			Store:     s.staging,
			Services:  services,
			Owner:     owner,
			UploadDir: filepath.Join(s.cfg.DataDir, "uploads"),
			Defaults: matcher.Defaults{
				Parametric:   s.cfg.Defaults.Parametric,
				Freemium:     string(s.cfg.Defaults.Freemium),
				NestedFamily: s.cfg.Defaults.NestedFamily,
			},
			Include:       s.cfg.Upload.Include,
			Exclude:       s.cfg.Upload.Exclude,
			Concurrency:   s.cfg.MaxConcurrency,
			ThumbnailSize: s.cfg.Upload.ThumbnailSize,
			Recorder:      recorder,
			Notifier:      s.notifier,
			Events:        hub,
		})

		devices.RegisterRoutes(r, s.devices, owner, recorder)
		audit.RegisterRoutes(r, s.audit)
		notifications.RegisterRoutes(r, s.notifier)
	})

	return r
}

// longRunning lists paths served without the request timeout. Imports and
// uploads of large families outlive it, and the websocket stays open.
var longRunning = map[string]bool{
	"/api/staging/import": true,
	"/api/staging/upload": true,
	"/ws/events":          true,
}

func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := middleware.Timeout(d)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if longRunning[strings.TrimSuffix(r.URL.Path, "/")] {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func (s *Server) catalogService(r *http.Request) *catalog.Service {
	return catalog.NewService(s.client.WithAuth(auth.Token(r.Context())), s.cfg.PerPage)
}

func (s *Server) pluginService(r *http.Request) *plugins.Service {
	return plugins.NewService(s.client.WithAuth(auth.Token(r.Context())))
}

func (s *Server) accountService(r *http.Request) *auth.Service {
	return auth.NewService(s.client.WithAuth(auth.Token(r.Context())))
}

// requireForWrites lets reads through and requires a valid session for
// every other method.
func requireForWrites(next http.Handler) http.Handler {
	protected := auth.Require(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			protected.ServeHTTP(w, r)
		}
	})
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Database returns the database connection.
func (s *Server) Database() *db.DB { return s.db }

// Sessions returns the studio session manager.
func (s *Server) Sessions() *studio.Manager { return s.sessions }

// Dashboard returns the dashboard, whose hub receives progress events.
func (s *Server) Dashboard() *dashboard.Dashboard { return s.dashboard }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logrus.WithFields(logrus.Fields{
		"addr":    addr,
		"backend": s.client.BaseURL(),
	}).Info("rvtstudio server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and disconnects websocket
// clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.dashboard.Hub().Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
