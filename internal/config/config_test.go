package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Resolver.Timeout() != 6*time.Second {
		t.Fatalf("expected 6s timeout, got %v", cfg.Resolver.Timeout())
	}
	if !cfg.Resolver.FastOnly || !cfg.Resolver.Race || cfg.Resolver.AllowNitter {
		t.Fatalf("unexpected resolver toggles: %+v", cfg.Resolver)
	}
	if len(cfg.Resolver.NitterHosts) != len(DefaultNitterHosts) {
		t.Fatalf("expected default nitter hosts, got %v", cfg.Resolver.NitterHosts)
	}
	if cfg.Fetch.Workers != 16 || cfg.Fetch.FlushEvery != 50 {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.Fetch.Sleep() != 20*time.Millisecond {
		t.Fatalf("expected 20ms sleep, got %v", cfg.Fetch.Sleep())
	}
	if cfg.Cache.Backend != BackendFile || cfg.Cache.Path != "tweet_text_cache.csv" {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
resolver:
  timeout_seconds: 2.5
  fast_only: false
  race: false
  allow_nitter: true
  nitter_hosts: ["nitter.example"]
  host_rps: 4
fetch:
  workers: 3
  sleep_seconds: 0
  flush_every: 7
  refetch_empty: true
paths:
  input_dir: /data/in
  output_dir: /data/out
cache:
  path: cache.csv
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Resolver.Timeout() != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s timeout, got %v", cfg.Resolver.Timeout())
	}
	if cfg.Resolver.FastOnly || cfg.Resolver.Race || !cfg.Resolver.AllowNitter {
		t.Fatalf("expected resolver overrides to apply: %+v", cfg.Resolver)
	}
	if len(cfg.Resolver.NitterHosts) != 1 || cfg.Resolver.NitterHosts[0] != "nitter.example" {
		t.Fatalf("expected nitter override, got %v", cfg.Resolver.NitterHosts)
	}
	if cfg.Fetch.Workers != 3 || cfg.Fetch.FlushEvery != 7 || !cfg.Fetch.RefetchEmpty {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
	if got := cfg.CachePath(); got != filepath.Join("/data/out", "cache.csv") {
		t.Fatalf("expected cache under output dir, got %s", got)
	}
	if err := cfg.ValidateFetch(); err != nil {
		t.Fatalf("ValidateFetch() error = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("JITTER_TIMEOUT", "9")
	t.Setenv("JITTER_FAST_ONLY", "0")
	t.Setenv("JITTER_PAR_FAST", "0")
	t.Setenv("JITTER_ALLOW_NITTER", "1")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Resolver.Timeout() != 9*time.Second {
		t.Fatalf("expected 9s timeout from JITTER_TIMEOUT, got %v", cfg.Resolver.Timeout())
	}
	if cfg.Resolver.FastOnly || cfg.Resolver.Race || !cfg.Resolver.AllowNitter {
		t.Fatalf("expected legacy env toggles to apply: %+v", cfg.Resolver)
	}
}

func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("HARVEST_FETCH_WORKERS", "5")
	t.Setenv("HARVEST_RESOLVER_TIMEOUT_SECONDS", "3")
	t.Setenv("JITTER_TIMEOUT", "9")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Workers != 5 {
		t.Fatalf("expected 5 workers, got %d", cfg.Fetch.Workers)
	}
	if cfg.Resolver.Timeout() != 3*time.Second {
		t.Fatalf("expected HARVEST_ env to win, got %v", cfg.Resolver.Timeout())
	}
}

func TestLoadBindsChangedFlags(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	flags.String("input-dir", "", "")
	flags.String("output-dir", "", "")
	flags.Int("max-workers", 16, "")
	flags.Float64("sleep", 0.02, "")
	flags.Int("flush-every", 50, "")
	if err := flags.Parse([]string{
		"--input-dir", "in", "--output-dir", "out", "--max-workers", "2", "--sleep", "0.5",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Paths.InputDir != "in" || cfg.Paths.OutputDir != "out" {
		t.Fatalf("expected path flags to bind: %+v", cfg.Paths)
	}
	if cfg.Fetch.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", cfg.Fetch.Workers)
	}
	if cfg.Fetch.Sleep() != 500*time.Millisecond {
		t.Fatalf("expected 500ms sleep, got %v", cfg.Fetch.Sleep())
	}
	if cfg.Fetch.FlushEvery != 50 {
		t.Fatalf("unchanged flag should keep default, got %d", cfg.Fetch.FlushEvery)
	}
}

func TestCachePathAbsolute(t *testing.T) {
	t.Parallel()

	cfg := Config{Paths: PathsConfig{OutputDir: "out"}, Cache: CacheConfig{Path: "/var/cache/tweets.csv"}}
	if got := cfg.CachePath(); got != "/var/cache/tweets.csv" {
		t.Fatalf("expected absolute path untouched, got %s", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	base.Paths = PathsConfig{InputDir: "in", OutputDir: "out"}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Resolver.TimeoutSeconds = 0
				return c
			}(),
			want: "resolver.timeout_seconds",
		},
		{
			name: "nitter without hosts",
			cfg: func() Config {
				c := base
				c.Resolver.AllowNitter = true
				c.Resolver.NitterHosts = nil
				return c
			}(),
			want: "resolver.nitter_hosts",
		},
		{
			name: "missing input dir",
			cfg: func() Config {
				c := base
				c.Paths.InputDir = " "
				return c
			}(),
			want: "paths.input_dir",
		},
		{
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Fetch.Workers = 0
				return c
			}(),
			want: "fetch.workers",
		},
		{
			name: "invalid flush threshold",
			cfg: func() Config {
				c := base
				c.Fetch.FlushEvery = 0
				return c
			}(),
			want: "fetch.flush_every",
		},
		{
			name: "postgres without dsn",
			cfg: func() Config {
				c := base
				c.Cache.Backend = BackendPostgres
				return c
			}(),
			want: "cache.postgres.dsn",
		},
		{
			name: "unknown backend",
			cfg: func() Config {
				c := base
				c.Cache.Backend = "redis"
				return c
			}(),
			want: "cache.backend",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.ValidateFetch()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
