package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ziadkadry99/rvt-studio/internal/walker"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use a
// double underscore: RVTSTUDIO_SERVER__PORT -> server.port.
const EnvPrefix = "RVTSTUDIO_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (RVTSTUDIO_*). A .env file next to the
// config file is loaded into the environment first, without overriding
// variables that are already set.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validTiers = map[Tier]bool{
	TierFree:    true,
	TierPremium: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend_url %q: must be an absolute URL", c.BackendURL)
	}

	if c.RequestTimeoutSec < 0 {
		return fmt.Errorf("request_timeout_sec must be non-negative")
	}
	if c.PerPage <= 0 {
		return fmt.Errorf("per_page must be positive")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be non-negative")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.LogFormat != "" && c.LogFormat != LogText && c.LogFormat != LogJSON {
		return fmt.Errorf("invalid log_format %q: must be text or json", c.LogFormat)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Upload.ThumbnailSize < 0 {
		return fmt.Errorf("upload.thumbnail_size must be non-negative")
	}
	if err := walker.ValidatePatterns(c.Upload.Include); err != nil {
		return fmt.Errorf("upload.include: %w", err)
	}
	if err := walker.ValidatePatterns(c.Upload.Exclude); err != nil {
		return fmt.Errorf("upload.exclude: %w", err)
	}
	if !validTiers[c.Defaults.Freemium] {
		return fmt.Errorf("invalid defaults.freemium %q: must be free or premium", c.Defaults.Freemium)
	}
	if c.Plugin.MaxDevices < 1 {
		return fmt.Errorf("plugin.max_devices must be at least 1")
	}
	if c.Mirror.Endpoint != "" && c.Mirror.Bucket == "" {
		return fmt.Errorf("mirror.bucket is required when mirror.endpoint is set")
	}
	for _, hook := range c.Webhooks {
		if u, err := url.Parse(hook); err != nil || u.Scheme == "" {
			return fmt.Errorf("invalid webhook URL %q", hook)
		}
	}

	return nil
}

// RequestTimeout returns the outbound HTTP timeout. Zero disables it.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
