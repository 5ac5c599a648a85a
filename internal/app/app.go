// Package app initializes and holds long-lived services for a harvester
// process, acting as a small dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tweet-harvester/internal/cache"
	"github.com/JakeFAU/tweet-harvester/internal/config"
	collyfetcher "github.com/JakeFAU/tweet-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/tweet-harvester/internal/harvest"
	"github.com/JakeFAU/tweet-harvester/internal/id/uuid"
	"github.com/JakeFAU/tweet-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/tweet-harvester/internal/progress"
	"github.com/JakeFAU/tweet-harvester/internal/resolver"
)

// App holds the shared services for one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	resolver *resolver.Resolver
	tracker  *progress.Tracker
	store    *cache.Store
	closers  []func()
}

// New wires the resolver chain and run identity. The cache is opened
// separately by OpenCache since not every command needs it.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.New().MustRunID()
	logger = logger.With(zap.String("run_id", runID))

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Resolver.UserAgent,
		Timeout:      cfg.Resolver.Timeout(),
		MaxBodyBytes: int(cfg.Resolver.MaxBodyBytes),
	})
	var limiter resolver.Limiter
	if cfg.Resolver.HostRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Resolver.HostRPS,
			DefaultBurst: cfg.Resolver.HostBurst,
		})
	}
	res := resolver.New(resolver.Config{
		Timeout:     cfg.Resolver.Timeout(),
		FastOnly:    cfg.Resolver.FastOnly,
		Race:        cfg.Resolver.Race,
		AllowNitter: cfg.Resolver.AllowNitter,
		NitterHosts: cfg.Resolver.NitterHosts,
	}, fetcher, limiter, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		resolver: res,
		tracker:  progress.NewTracker(runID, nil),
	}, nil
}

// OpenCache builds the configured backend and loads the cache from it.
func (a *App) OpenCache(ctx context.Context) (*cache.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	var backend cache.Backend
	switch a.cfg.Cache.Backend {
	case config.BackendFile, "":
		path := a.cfg.CachePath()
		a.logger.Info("using file cache", zap.String("path", path))
		backend = cache.NewFileBackend(path, a.logger)
	case config.BackendPostgres:
		a.logger.Info("using postgres cache", zap.String("table", a.cfg.Cache.Postgres.Table))
		pg, err := cache.NewPostgresBackend(ctx, cache.PostgresConfig{
			DSN:      a.cfg.Cache.Postgres.DSN,
			Table:    a.cfg.Cache.Postgres.Table,
			MaxConns: a.cfg.Cache.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres cache: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		backend = pg
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", a.cfg.Cache.Backend)
	}

	store := cache.NewStore(backend, a.logger)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

// Harvester builds the batch orchestrator over the opened cache.
func (a *App) Harvester(ctx context.Context) (*harvest.Harvester, error) {
	store, err := a.OpenCache(ctx)
	if err != nil {
		return nil, err
	}
	return harvest.New(harvest.Config{
		Workers:      a.cfg.Fetch.Workers,
		Sleep:        a.cfg.Fetch.Sleep(),
		FlushEvery:   a.cfg.Fetch.FlushEvery,
		RefetchEmpty: a.cfg.Fetch.RefetchEmpty,
	}, a.resolver, store, a.tracker, a.logger), nil
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Resolver returns the shared mirror chain.
func (a *App) Resolver() *resolver.Resolver { return a.resolver }

// Tracker returns the run's progress tracker.
func (a *App) Tracker() *progress.Tracker { return a.tracker }

// Close releases backend resources.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
