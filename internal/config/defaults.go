package config

import "path/filepath"

// DefaultBackendURL is the hosted catalog backend.
const DefaultBackendURL = "https://brezelbits.xyz"

// DefaultFileName is the config file looked up when --config is not given.
const DefaultFileName = ".rvtstudio.yml"

// DefaultUploadExcludes are glob patterns skipped when scanning upload directories.
var DefaultUploadExcludes = []string{
	".git/**",
	"**/backup/**",
	"**/*.tmp",
	"**/Thumbs.db",
	"**/.DS_Store",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BackendURL:        DefaultBackendURL,
		RequestTimeoutSec: 30,
		PerPage:           30,
		MaxConcurrency:    5,
		DataDir:           ".rvtstudio",
		LogFormat:         LogText,
		Server: ServerConfig{
			Port: 8080,
		},
		Upload: UploadConfig{
			ThumbnailSize: 512,
			Include:       []string{"**"},
			Exclude:       DefaultUploadExcludes,
		},
		Defaults: FamilyDefaults{
			Parametric:   true,
			Freemium:     TierFree,
			NestedFamily: true,
		},
		Plugin: PluginConfig{
			SiteURL:    "https://plugin.projectrvt.com/",
			MaxDevices: 5,
		},
	}
}

// DatabasePath returns the location of the local SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "rvtstudio.db")
}
