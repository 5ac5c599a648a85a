// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultUserAgent identifies outbound mirror requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; jitter_noauth/2.0)"

// DefaultNitterHosts is the ordered last-resort mirror list.
var DefaultNitterHosts = []string{
	"nitter.net",
	"nitter.poast.org",
	"nitter.fdn.fr",
	"nitter.lacontrevoie.fr",
}

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Resolver ResolverConfig `mapstructure:"resolver"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ResolverConfig controls the mirror chain.
type ResolverConfig struct {
	TimeoutSeconds float64  `mapstructure:"timeout_seconds"`
	FastOnly       bool     `mapstructure:"fast_only"`
	Race           bool     `mapstructure:"race"`
	AllowNitter    bool     `mapstructure:"allow_nitter"`
	UserAgent      string   `mapstructure:"user_agent"`
	NitterHosts    []string `mapstructure:"nitter_hosts"`
	HostRPS        float64  `mapstructure:"host_rps"`
	HostBurst      int      `mapstructure:"host_burst"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
}

// Timeout converts the per-request timeout to a duration.
func (c ResolverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// FetchConfig governs the per-batch worker pool and sinks.
type FetchConfig struct {
	Workers      int     `mapstructure:"workers"`
	SleepSeconds float64 `mapstructure:"sleep_seconds"`
	FlushEvery   int     `mapstructure:"flush_every"`
	RefetchEmpty bool    `mapstructure:"refetch_empty"`
}

// Sleep converts the per-worker throttle to a duration.
func (c FetchConfig) Sleep() time.Duration {
	return time.Duration(c.SleepSeconds * float64(time.Second))
}

// PathsConfig locates input batches and output datasets.
type PathsConfig struct {
	InputDir  string `mapstructure:"input_dir"`
	OutputDir string `mapstructure:"output_dir"`
}

// CacheConfig selects and locates the durable text cache.
type CacheConfig struct {
	Backend  string         `mapstructure:"backend"`
	Path     string         `mapstructure:"path"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig configures the optional Postgres cache backend.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MetricsConfig toggles the status server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and file output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	Compress    bool   `mapstructure:"compress"`
}

// Cache backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"input-dir":    "paths.input_dir",
	"output-dir":   "paths.output_dir",
	"sleep":        "fetch.sleep_seconds",
	"cache":        "cache.path",
	"max-workers":  "fetch.workers",
	"flush-every":  "fetch.flush_every",
	"metrics-addr": "metrics.addr",
}

// legacyEnv lists the environment names honored by older tooling.
var legacyEnv = map[string]string{
	"resolver.timeout_seconds": "JITTER_TIMEOUT",
	"resolver.fast_only":       "JITTER_FAST_ONLY",
	"resolver.race":            "JITTER_PAR_FAST",
	"resolver.allow_nitter":    "JITTER_ALLOW_NITTER",
}

// Load builds a Config from disk, environment, and any bound flags. Flags
// that were not set on the command line do not override file or env values.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, legacy := range legacyEnv {
		envKey := "HARVEST_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("resolver.timeout_seconds", 6)
	v.SetDefault("resolver.fast_only", true)
	v.SetDefault("resolver.race", true)
	v.SetDefault("resolver.allow_nitter", false)
	v.SetDefault("resolver.user_agent", DefaultUserAgent)
	v.SetDefault("resolver.nitter_hosts", DefaultNitterHosts)
	v.SetDefault("resolver.host_rps", 0)
	v.SetDefault("resolver.host_burst", 1)
	v.SetDefault("resolver.max_body_bytes", 2<<20)
	v.SetDefault("fetch.workers", 16)
	v.SetDefault("fetch.sleep_seconds", 0.02)
	v.SetDefault("fetch.flush_every", 50)
	v.SetDefault("fetch.refetch_empty", false)
	v.SetDefault("paths.input_dir", "")
	v.SetDefault("paths.output_dir", "")
	v.SetDefault("cache.backend", BackendFile)
	v.SetDefault("cache.path", "tweet_text_cache.csv")
	v.SetDefault("cache.postgres.dsn", "")
	v.SetDefault("cache.postgres.table", "tweet_text_cache")
	v.SetDefault("cache.postgres.max_conns", 4)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.compress", false)
}

// Validate enforces the settings every command needs.
func (c Config) Validate() error {
	if c.Resolver.TimeoutSeconds <= 0 {
		return fmt.Errorf("resolver.timeout_seconds must be > 0")
	}
	if c.Resolver.UserAgent == "" {
		return fmt.Errorf("resolver.user_agent must be set")
	}
	if c.Resolver.AllowNitter && len(c.Resolver.NitterHosts) == 0 {
		return fmt.Errorf("resolver.nitter_hosts must be set when allow_nitter is enabled")
	}
	if c.Resolver.HostRPS < 0 {
		return fmt.Errorf("resolver.host_rps must be >= 0")
	}
	if c.Resolver.MaxBodyBytes <= 0 {
		return fmt.Errorf("resolver.max_body_bytes must be > 0")
	}
	return nil
}

// ValidateFetch adds the checks the batch run needs on top of Validate.
func (c Config) ValidateFetch() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Paths.InputDir) == "" {
		return fmt.Errorf("paths.input_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return fmt.Errorf("paths.output_dir must be set")
	}
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be > 0")
	}
	if c.Fetch.SleepSeconds < 0 {
		return fmt.Errorf("fetch.sleep_seconds must be >= 0")
	}
	if c.Fetch.FlushEvery <= 0 {
		return fmt.Errorf("fetch.flush_every must be > 0")
	}
	switch c.Cache.Backend {
	case BackendFile:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path must be set")
		}
	case BackendPostgres:
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn must be set when cache.backend is postgres")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	return nil
}

// CachePath resolves the cache file location; relative paths live under the
// output directory.
func (c Config) CachePath() string {
	if filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(c.Paths.OutputDir, c.Cache.Path)
}
