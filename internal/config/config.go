// Package config provides configuration loading and validation for the
// proxy server.
//
// Configuration can be provided via:
//   - Command line flags (highest priority)
//   - Environment variables (CRATES_IO_PROXY_ prefix)
//   - A YAML configuration file (lowest priority, loaded first)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the proxy server.
type Config struct {
	// Listen is the TCP address to listen on.
	Listen string `yaml:"listen"`

	// ListenUnix is a Unix-domain socket path. If set, it takes priority
	// over Listen.
	ListenUnix string `yaml:"listen_unix"`

	// UpstreamURL is the crate download origin.
	UpstreamURL string `yaml:"upstream_url"`

	// IndexURL is the sparse-index origin.
	IndexURL string `yaml:"index_url"`

	// ProxyURL is the URL baked into the synthesized config.json.
	ProxyURL string `yaml:"proxy_url"`

	// CacheDir is the root of the on-disk index/ and crates/ trees.
	CacheDir string `yaml:"cache_dir"`

	// CacheTTL is the freshness window for IndexKey's last-refreshed
	// instant.
	CacheTTL Duration `yaml:"cache_ttl"`

	// Verbose steps up the log level: 0=info, 1=debug.
	Verbose int `yaml:"verbose"`

	// Stats configures the observational access ledger.
	Stats StatsConfig `yaml:"stats"`

	// MaxInflightFetches bounds concurrent upstream fetch workers.
	MaxInflightFetches int64 `yaml:"max_inflight_fetches"`

	// MetricsListen is a distinct address for /metrics and /stats. Empty
	// means they are mounted on the main listener.
	MetricsListen string `yaml:"metrics_listen"`

	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
}

// StatsConfig configures the access-ledger database.
type StatsConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file path.
	Path string `yaml:"path"`

	// URL is the PostgreSQL connection string.
	URL string `yaml:"url"`
}

// Default returns a Config with the defaults from spec §6.
func Default() *Config {
	return &Config{
		Listen:      "0.0.0.0:3080",
		UpstreamURL: "https://crates.io/",
		IndexURL:    "https://index.crates.io/",
		ProxyURL:    "http://localhost:3080/",
		CacheDir:    "/var/cache/crates-io-proxy",
		CacheTTL:    Duration(time.Hour),
		Stats: StatsConfig{
			Driver: "sqlite",
			Path:   "/var/cache/crates-io-proxy/stats.db",
		},
		MaxInflightFetches: 64,
		LogFormat:          "text",
	}
}

// Load reads a YAML configuration file on top of the defaults. An empty
// path yields the defaults unchanged; a non-empty path that cannot be read
// (including one that does not exist) or parsed is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv applies CRATES_IO_PROXY_-prefixed environment variable
// overrides to c.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("CRATES_IO_PROXY_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_LISTEN_UNIX"); v != "" {
		c.ListenUnix = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_UPSTREAM_URL"); v != "" {
		c.UpstreamURL = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_INDEX_URL"); v != "" {
		c.IndexURL = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_PROXY_URL"); v != "" {
		c.ProxyURL = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing CRATES_IO_PROXY_CACHE_TTL: %w", err)
		}
		c.CacheTTL = Duration(d)
	}
	if v := os.Getenv("CRATES_IO_PROXY_VERBOSE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing CRATES_IO_PROXY_VERBOSE: %w", err)
		}
		c.Verbose = n
	}
	if v := os.Getenv("CRATES_IO_PROXY_STATS_DB_DRIVER"); v != "" {
		c.Stats.Driver = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_STATS_DB_PATH"); v != "" {
		c.Stats.Path = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_STATS_DB_URL"); v != "" {
		c.Stats.URL = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_MAX_INFLIGHT_FETCHES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing CRATES_IO_PROXY_MAX_INFLIGHT_FETCHES: %w", err)
		}
		c.MaxInflightFetches = n
	}
	if v := os.Getenv("CRATES_IO_PROXY_METRICS_LISTEN"); v != "" {
		c.MetricsListen = v
	}
	if v := os.Getenv("CRATES_IO_PROXY_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Listen == "" && c.ListenUnix == "" {
		return fmt.Errorf("one of listen or listen_unix is required")
	}
	if c.UpstreamURL == "" {
		return fmt.Errorf("upstream_url is required")
	}
	if c.IndexURL == "" {
		return fmt.Errorf("index_url is required")
	}
	if c.ProxyURL == "" {
		return fmt.Errorf("proxy_url is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if c.MaxInflightFetches <= 0 {
		return fmt.Errorf("max_inflight_fetches must be positive")
	}

	switch c.Stats.Driver {
	case "sqlite":
		if c.Stats.Path == "" {
			return fmt.Errorf("stats.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Stats.URL == "" {
			return fmt.Errorf("stats.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid stats.driver %q (must be sqlite or postgres)", c.Stats.Driver)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (must be text or json)", c.LogFormat)
	}

	return nil
}

// UsesUnixSocket reports whether ListenUnix should win over Listen, per
// spec §6's "UDS wins if set" rule.
func (c *Config) UsesUnixSocket() bool {
	return c.ListenUnix != ""
}
