// Package mirror archives plugin installers and family files to an
// S3-compatible bucket.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
	"github.com/ziadkadry99/rvt-studio/internal/progress"
)

// PluginKey is the object key of a release installer.
func PluginKey(r *plugins.Release) string {
	return path.Join("plugins", r.Version, r.FriendlyFileName())
}

// FamilyKey is the object key of a file attached to a family.
func FamilyKey(familyID, filename string) string {
	return path.Join("families", familyID, filename)
}

// Result summarises a mirror run.
type Result struct {
	Uploaded []string          `json:"uploaded"`
	Skipped  []string          `json:"skipped"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// Failed returns the number of objects that could not be mirrored.
func (r *Result) Failed() int { return len(r.Errors) }

// Message summarises the run for humans.
func (r *Result) Message() string {
	return fmt.Sprintf("Mirrored %d objects (%d already present, %d failed)",
		len(r.Uploaded), len(r.Skipped), r.Failed())
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithFamilies also mirrors every family RFA and thumbnail.
func WithFamilies(on bool) Option {
	return func(m *Mirror) { m.families = on }
}

// WithConcurrency bounds parallel uploads.
func WithConcurrency(n int) Option {
	return func(m *Mirror) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithReporter sets the progress reporter.
func WithReporter(r progress.Reporter) Option {
	return func(m *Mirror) {
		if r != nil {
			m.reporter = r
		}
	}
}

// Mirror copies backend files into an ObjectStore.
type Mirror struct {
	client      *pocketbase.Client
	store       ObjectStore
	families    bool
	concurrency int
	reporter    progress.Reporter
}

// New creates a Mirror reading from client and writing to store.
func New(client *pocketbase.Client, store ObjectStore, opts ...Option) *Mirror {
	m := &Mirror{
		client:      client,
		store:       store,
		concurrency: 4,
		reporter:    progress.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// object is one file to copy.
type object struct {
	key          string
	collectionID string
	recordID     string
	filename     string
}

// plan lists the objects a run would copy.
func (m *Mirror) plan(ctx context.Context) ([]object, error) {
	var objects []object

	rel, err := plugins.NewService(m.client).Latest(ctx)
	switch {
	case errors.Is(err, plugins.ErrNoReleases):
		logrus.Info("mirror: no plugin releases to archive")
	case err != nil:
		return nil, err
	case rel.Installer != "":
		objects = append(objects, object{
			key:          PluginKey(rel),
			collectionID: rel.CollectionID,
			recordID:     rel.ID,
			filename:     rel.Installer,
		})
	}

	if m.families {
		all, err := catalog.NewService(m.client, 0).AllFamilies(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing families: %w", err)
		}
		for _, f := range all {
			for _, name := range []string{f.RFA, f.Thumbnail} {
				if name == "" {
					continue
				}
				objects = append(objects, object{
					key:          FamilyKey(f.ID, name),
					collectionID: f.CollectionID,
					recordID:     f.ID,
					filename:     name,
				})
			}
		}
	}
	return objects, nil
}

// Run copies every planned object that the bucket does not already hold.
// Per-object failures are collected in the result.
func (m *Mirror) Run(ctx context.Context) (*Result, error) {
	objects, err := m.plan(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Uploaded: []string{}, Skipped: []string{}}
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		done int
	)
	sem := make(chan struct{}, m.concurrency)

	m.reporter.Start(len(objects))
	for _, obj := range objects {
		wg.Add(1)
		sem <- struct{}{}
		go func(obj object) {
			defer wg.Done()
			defer func() { <-sem }()

			uploaded, err := m.copy(ctx, obj)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if res.Errors == nil {
					res.Errors = map[string]string{}
				}
				res.Errors[obj.key] = err.Error()
				logrus.WithError(err).WithField("key", obj.key).Warn("mirror: copy failed")
			case uploaded:
				res.Uploaded = append(res.Uploaded, obj.key)
			default:
				res.Skipped = append(res.Skipped, obj.key)
			}
			done++
			m.reporter.Update(done, obj.key)
		}(obj)
	}
	wg.Wait()
	m.reporter.Finish()

	sort.Strings(res.Uploaded)
	sort.Strings(res.Skipped)
	return res, nil
}

func (m *Mirror) copy(ctx context.Context, obj object) (bool, error) {
	exists, err := m.store.Exists(ctx, obj.key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	body, size, err := m.client.OpenFile(ctx, obj.collectionID, obj.recordID, obj.filename)
	if err != nil {
		return false, err
	}
	defer body.Close()

	if err := m.store.Put(ctx, obj.key, body, size, ContentType(obj.filename)); err != nil {
		return false, err
	}
	logrus.WithField("key", obj.key).Debug("mirror: uploaded")
	return true, nil
}
