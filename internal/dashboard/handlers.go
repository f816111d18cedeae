package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/rvt-studio/internal/audit"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/devices"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
	"github.com/ziadkadry99/rvt-studio/internal/staging"
)

const recentLimit = 10

// pluginInfo summarises the latest plugin release.
type pluginInfo struct {
	Version  string `json:"version"`
	FileName string `json:"file_name"`
	Updated  string `json:"updated"`
	Banner   string `json:"banner"`
}

// statsResponse is the JSON response for the stats endpoint. Sections that
// failed to load are reported in Warnings.
type statsResponse struct {
	Families       int                   `json:"families"`
	Categories     int                   `json:"categories"`
	TopCategories  []catalog.TopCategory `json:"top_categories"`
	Staging        *staging.Summary      `json:"staging,omitempty"`
	LatestPlugin   *pluginInfo           `json:"latest_plugin,omitempty"`
	Devices        *devices.Usage        `json:"devices,omitempty"`
	DevicesLabel   string                `json:"devices_label,omitempty"`
	Subscription   string                `json:"subscription,omitempty"`
	RecentActivity []audit.Entry         `json:"recent_activity"`
	Warnings       map[string]string     `json:"warnings,omitempty"`
}

// collector gathers stats sections concurrently.
type collector struct {
	mu  sync.Mutex
	wg  sync.WaitGroup
	out *statsResponse
}

func (c *collector) run(section string, fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			logrus.WithError(err).WithField("section", section).Warn("dashboard: stats section failed")
			c.mu.Lock()
			if c.out.Warnings == nil {
				c.out.Warnings = map[string]string{}
			}
			c.out.Warnings[section] = err.Error()
			c.mu.Unlock()
		}
	}()
}

func (c *collector) set(fn func(*statsResponse)) {
	c.mu.Lock()
	fn(c.out)
	c.mu.Unlock()
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := &collector{out: &statsResponse{
		TopCategories:  []catalog.TopCategory{},
		RecentActivity: []audit.Entry{},
	}}
	owner := ""
	if d.src.Owner != nil {
		owner = d.src.Owner(r)
	}

	if d.src.Catalog != nil {
		svc := d.src.Catalog(r)
		c.run("families", func() error {
			page, err := svc.ListFamilies(ctx, 1, 1)
			if err != nil {
				return err
			}
			c.set(func(s *statsResponse) { s.Families = page.TotalItems })
			return nil
		})
		c.run("categories", func() error {
			cats, err := svc.ListCategories(ctx)
			if err != nil {
				return err
			}
			stats, err := svc.CategoryStats(ctx)
			if err != nil {
				return err
			}
			top := catalog.TopCategoryBars(stats, 3)
			c.set(func(s *statsResponse) {
				s.Categories = len(cats)
				s.TopCategories = top
			})
			return nil
		})
	}

	if d.src.Plugins != nil {
		svc := d.src.Plugins(r)
		c.run("latest_plugin", func() error {
			rel, err := svc.Latest(ctx)
			if errors.Is(err, plugins.ErrNoReleases) {
				return nil
			}
			if err != nil {
				return err
			}
			info := &pluginInfo{
				Version:  rel.Version,
				FileName: rel.FriendlyFileName(),
				Updated:  plugins.FormatDate(rel.Updated),
				Banner:   plugins.Banner(rel, time.Now()),
			}
			c.set(func(s *statsResponse) { s.LatestPlugin = info })
			return nil
		})
	}

	if d.src.Account != nil && owner != "" {
		svc := d.src.Account(r)
		c.run("subscription", func() error {
			user, err := svc.Me(ctx, owner)
			if err != nil {
				return err
			}
			c.set(func(s *statsResponse) { s.Subscription = user.Tier() })
			return nil
		})
	}

	// Local stores share one SQLite connection pool, so they run in order.
	c.run("local", func() error {
		if d.src.Staging != nil && owner != "" {
			batch, err := d.src.Staging.ActiveBatch(ctx, owner)
			if err != nil {
				return err
			}
			sum, err := d.src.Staging.Summary(ctx, batch.ID)
			if err != nil {
				return err
			}
			c.set(func(s *statsResponse) { s.Staging = sum })
		}
		if d.src.Devices != nil && owner != "" {
			usage, err := d.src.Devices.Usage(ctx, owner)
			if err != nil {
				return err
			}
			c.set(func(s *statsResponse) {
				s.Devices = &usage
				s.DevicesLabel = usage.String()
			})
		}
		if d.src.Audit != nil {
			entries, err := d.src.Audit.Recent(ctx, recentLimit)
			if err != nil {
				return err
			}
			if entries != nil {
				c.set(func(s *statsResponse) { s.RecentActivity = entries })
			}
		}
		return nil
	})

	c.wg.Wait()
	writeJSON(w, http.StatusOK, c.out)
}

func (d *Dashboard) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := recentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries := []audit.Entry{}
	if d.src.Audit != nil {
		got, err := d.src.Audit.Recent(r.Context(), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if got != nil {
			entries = got
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (d *Dashboard) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := d.hub.Recent()
	if events == nil {
		events = []progress.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
