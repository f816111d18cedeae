package config

// Tier is the access tier of a family or an account.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// LogFormat selects the logrus formatter.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// Config is the top-level rvtstudio configuration, corresponding to .rvtstudio.yml.
type Config struct {
	BackendURL        string         `yaml:"backend_url" koanf:"backend_url"`
	RequestTimeoutSec int            `yaml:"request_timeout_sec" koanf:"request_timeout_sec"`
	PerPage           int            `yaml:"per_page" koanf:"per_page"`
	MaxConcurrency    int            `yaml:"max_concurrency" koanf:"max_concurrency"`
	DataDir           string         `yaml:"data_dir" koanf:"data_dir"`
	LogFormat         LogFormat      `yaml:"log_format" koanf:"log_format"`
	Server            ServerConfig   `yaml:"server" koanf:"server"`
	Upload            UploadConfig   `yaml:"upload" koanf:"upload"`
	Defaults          FamilyDefaults `yaml:"defaults" koanf:"defaults"`
	Plugin            PluginConfig   `yaml:"plugin" koanf:"plugin"`
	Mirror            MirrorConfig   `yaml:"mirror" koanf:"mirror"`
	Webhooks          []string       `yaml:"webhooks" koanf:"webhooks"`
}

// ServerConfig holds settings for `rvtstudio server`.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// UploadConfig controls how bulk-upload directories are scanned and how
// thumbnails are prepared before upload.
type UploadConfig struct {
	ThumbnailSize int      `yaml:"thumbnail_size" koanf:"thumbnail_size"`
	Include       []string `yaml:"include" koanf:"include"`
	Exclude       []string `yaml:"exclude" koanf:"exclude"`
}

// FamilyDefaults are applied to every newly staged family.
type FamilyDefaults struct {
	Parametric   bool `yaml:"parametric" koanf:"parametric"`
	Freemium     Tier `yaml:"freemium" koanf:"freemium"`
	NestedFamily bool `yaml:"nested_family" koanf:"nested_family"`
}

// PluginConfig holds plugin distribution settings.
type PluginConfig struct {
	SiteURL    string `yaml:"site_url" koanf:"site_url"`
	MaxDevices int    `yaml:"max_devices" koanf:"max_devices"`
}

// MirrorConfig points at an S3-compatible bucket used to archive installers
// and family files. An empty endpoint disables mirroring.
type MirrorConfig struct {
	Endpoint  string `yaml:"endpoint" koanf:"endpoint"`
	AccessKey string `yaml:"access_key" koanf:"access_key"`
	SecretKey string `yaml:"secret_key" koanf:"secret_key"`
	Bucket    string `yaml:"bucket" koanf:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" koanf:"use_ssl"`
}

// Enabled reports whether a mirror endpoint is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}
