// ABOUTME: Configuration loading and defaults for pkgaudit
// ABOUTME: Handles YAML config files, XDG paths, and validation

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppName names the config and cache directories.
const AppName = "pkgaudit"

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete configuration for pkgaudit.
type Config struct {
	// Cache directory for version stamps and snapshot artifacts.
	CacheDir string `yaml:"cache_dir"`

	// Channel overrides the host release (e.g. "25.11"). Empty asks the host.
	Channel string `yaml:"channel"`

	// Logging configuration.
	Log LogConfig `yaml:"log"`

	// Tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// HTTP client configuration.
	HTTP HTTPConfig `yaml:"http"`

	// Remote sources per artifact kind.
	Sources SourcesConfig `yaml:"sources"`

	// Alias oracle configuration.
	Oracle OracleConfig `yaml:"oracle"`

	// ProfileManifest is the nix profile manifest to audit.
	ProfileManifest string `yaml:"profile_manifest"`

	// FieldPath is the array field read from declarative documents.
	FieldPath string `yaml:"field_path"`

	// Report publishing configuration.
	Report ReportConfig `yaml:"report"`

	// Refresh configures watch mode.
	Refresh RefreshConfig `yaml:"refresh"`

	// Metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	Insecure      bool    `yaml:"insecure"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// HTTPConfig holds HTTP client settings shared by version lookups and fetches.
type HTTPConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	UserAgent        string        `yaml:"user_agent"`
	MaxSize          int64         `yaml:"max_size"`
	BreakerThreshold int64         `yaml:"breaker_threshold"`
}

// OracleConfig holds alias oracle settings.
type OracleConfig struct {
	NixBinary         string        `yaml:"nix_binary"`
	InstantiateBinary string        `yaml:"instantiate_binary"`
	Concurrency       int           `yaml:"concurrency"`
	Timeout           time.Duration `yaml:"timeout"`

	// CacheTTL bounds how long oracle answers are reused. Zero disables the cache.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// UnmarshalYAML accepts a bare 0 for the durations, which yaml.v3 would
// otherwise reject as an integer.
func (o *OracleConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain OracleConfig
	zeroDurations(value, "timeout", "cache_ttl")
	return value.Decode((*plain)(o))
}

// zeroDurations rewrites integer 0 values of keys in a mapping node to "0s".
func zeroDurations(mapping *yaml.Node, keys ...string) {
	if mapping.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, val := mapping.Content[i], mapping.Content[i+1]
		if val.Kind != yaml.ScalarNode || val.ShortTag() != "!!int" || val.Value != "0" {
			continue
		}
		for _, k := range keys {
			if key.Value == k {
				val.Tag = "!!str"
				val.Value = "0s"
			}
		}
	}
}

// ReportConfig holds report publishing settings.
type ReportConfig struct {
	// NATSURL enables publishing when set.
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// TextfilePath enables node-exporter textfile output when set.
	TextfilePath string `yaml:"textfile_path"`
}

// DefaultConfig returns a Config with default values.
// External integrations (NATS, tracing, metrics) are disabled by default.
func DefaultConfig() *Config {
	return &Config{
		CacheDir: DefaultCacheDir(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			Insecure:      true,
			SamplingRatio: 1.0,
		},
		HTTP: HTTPConfig{
			Timeout:          5 * time.Minute,
			UserAgent:        AppName + "/1.0",
			MaxSize:          500 * 1024 * 1024,
			BreakerThreshold: 5,
		},
		Sources: DefaultSourcesConfig(),
		Oracle: OracleConfig{
			NixBinary:         "nix",
			InstantiateBinary: "nix-instantiate",
			Concurrency:       4,
			Timeout:           2 * time.Minute,
			CacheTTL:          24 * time.Hour,
		},
		ProfileManifest: DefaultProfileManifest(),
		FieldPath:       "environment.systemPackages",
		Report: ReportConfig{
			Subject: "pkgaudit.reports",
		},
		Refresh: DefaultRefreshConfig(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path means
// DefaultConfigPath(), and a missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.CacheDir = ExpandHome(cfg.CacheDir)
	cfg.ProfileManifest = ExpandHome(cfg.ProfileManifest)
	cfg.Metrics.TextfilePath = ExpandHome(cfg.Metrics.TextfilePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("%w: cache_dir is empty", ErrInvalidConfig)
	}
	if c.FieldPath == "" {
		return fmt.Errorf("%w: field_path is empty", ErrInvalidConfig)
	}
	if c.Oracle.Concurrency < 1 {
		return fmt.Errorf("%w: oracle.concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.HTTP.MaxSize <= 0 {
		return fmt.Errorf("%w: http.max_size must be positive", ErrInvalidConfig)
	}
	for name, src := range c.Sources.ByKind() {
		if err := src.validate(); err != nil {
			return fmt.Errorf("%w: sources.%s: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// DefaultCacheDir returns the default cache directory.
func DefaultCacheDir() string {
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, AppName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}

	return filepath.Join(home, ".cache", AppName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, AppName, "config.yaml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/etc", AppName, "config.yaml")
	}

	return filepath.Join(home, ".config", AppName, "config.yaml")
}

// DefaultProfileManifest returns the manifest of the user's nix profile.
func DefaultProfileManifest() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".nix-profile", "manifest.json")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
