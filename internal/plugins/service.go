package plugins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
)

// ErrNoReleases is returned by Latest when nothing has been published.
var ErrNoReleases = errors.New("no plugin releases published")

// Service reads plugin releases from the backend.
type Service struct {
	client *pocketbase.Client
}

// NewService creates a Service.
func NewService(client *pocketbase.Client) *Service {
	return &Service{client: client}
}

// List returns every release, newest first.
func (s *Service) List(ctx context.Context) ([]Release, error) {
	releases, err := pocketbase.FullList[Release](ctx, s.client, Collection, pocketbase.ListOptions{Sort: "-created"})
	if err != nil {
		return nil, fmt.Errorf("listing plugin releases: %w", err)
	}
	return releases, nil
}

// Latest returns the most recently created release.
func (s *Service) Latest(ctx context.Context) (*Release, error) {
	res, err := pocketbase.List[Release](ctx, s.client, Collection, pocketbase.ListOptions{
		Page:    1,
		PerPage: 1,
		Sort:    "-created",
	})
	if err != nil {
		return nil, fmt.Errorf("fetching latest plugin release: %w", err)
	}
	if len(res.Items) == 0 {
		return nil, ErrNoReleases
	}
	return &res.Items[0], nil
}

// Get returns a release by id.
func (s *Service) Get(ctx context.Context, id string) (*Release, error) {
	return pocketbase.Get[Release](ctx, s.client, Collection, id, "")
}

// Find returns the release with the given version.
func (s *Service) Find(ctx context.Context, version string) (*Release, error) {
	releases, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range releases {
		if releases[i].Version == version {
			return &releases[i], nil
		}
	}
	return nil, fmt.Errorf("plugin version %q not found", version)
}

// InstallerURL returns the public download URL of the release installer.
func (s *Service) InstallerURL(r *Release) string {
	return s.client.FileURL(r.CollectionID, r.ID, r.Installer)
}

// Banner is the update notice shown above the release list.
func Banner(r *Release, now time.Time) string {
	return fmt.Sprintf("Plugin version %s was updated on %s (%s)",
		r.Version, FormatDate(r.Updated), TimeAgo(r.UpdatedTime(), now))
}

// Download saves the installer of r to dest. When dest is an existing
// directory the friendly file name is used inside it. Progress is drawn to
// progress when it is non-nil. It returns the written path and byte count.
func (s *Service) Download(ctx context.Context, r *Release, dest string, progress io.Writer) (string, int64, error) {
	if r.Installer == "" {
		return "", 0, fmt.Errorf("plugin version %s has no installer", r.Version)
	}
	if dest == "" {
		dest = "."
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, r.FriendlyFileName())
	}

	body, size, err := s.client.OpenFile(ctx, r.CollectionID, r.ID, r.Installer)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".rvtstudio-download-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating download file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if progress != nil {
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetDescription(r.FriendlyFileName()),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		w = io.MultiWriter(tmp, bar)
	}

	n, err := io.Copy(w, body)
	if err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("closing %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", 0, fmt.Errorf("moving download to %s: %w", dest, err)
	}
	return dest, n, nil
}
