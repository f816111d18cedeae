// Package dashboard serves the studio overview page, its stats endpoint and
// the live progress websocket.
package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/rvt-studio/internal/audit"
	"github.com/ziadkadry99/rvt-studio/internal/auth"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/devices"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
	"github.com/ziadkadry99/rvt-studio/internal/staging"
)

// Sources are the stores and backend services the stats are built from.
// Any field may be nil; its section is then left out.
type Sources struct {
	Catalog catalog.ServiceFunc
	Plugins plugins.ServiceFunc
	Account func(r *http.Request) *auth.Service
	Staging *staging.Store
	Devices *devices.Store
	Audit   *audit.Store
	// Owner returns the caller's user id, used for staging and devices.
	Owner func(r *http.Request) string
}

// Dashboard provides the studio overview and live progress feed.
type Dashboard struct {
	src Sources
	hub *Hub
}

// New creates a Dashboard broadcasting events from hub. A nil hub creates
// a new one.
func New(src Sources, hub *Hub) *Dashboard {
	if hub == nil {
		hub = NewHub()
	}
	return &Dashboard{src: src, hub: hub}
}

// Hub returns the event hub, for use as a progress.Publisher.
func (d *Dashboard) Hub() *Hub { return d.hub }

// RegisterRoutes mounts all dashboard routes onto the given router.
func (d *Dashboard) RegisterRoutes(r chi.Router) {
	r.Get("/", d.ServeIndex)
	r.Get("/api/dashboard/stats", d.handleStats)
	r.Get("/api/dashboard/recent", d.handleRecent)
	r.Get("/api/dashboard/events", d.handleEvents)
	r.Get("/ws/events", d.hub.ServeWS)
}
