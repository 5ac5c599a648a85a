// Package dispatcher fans work out to a bounded pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/tweet-harvester/internal/metrics"
)

// Config sizes the pool.
type Config struct {
	// Workers caps in-flight calls. Values below 1 are treated as 1.
	Workers int
	// Sleep follows every call inside the worker slot.
	Sleep time.Duration
}

// Dispatcher runs one function per item with bounded concurrency.
type Dispatcher struct {
	workers int
	sleep   time.Duration
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		workers: cfg.Workers,
		sleep:   cfg.Sleep,
		logger:  logger.Named("dispatcher"),
	}
}

// Workers reports the pool width.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Run calls fn once per item and waits for all started calls to finish.
// Once ctx is done no new items start and ctx's error is returned.
func (d *Dispatcher) Run(ctx context.Context, items []string, fn func(context.Context, string)) error {
	var g errgroup.Group
	g.SetLimit(d.workers)

	started := 0
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			fn(ctx, item)
			if d.sleep > 0 {
				time.Sleep(d.sleep)
			}
			return nil
		})
		started++
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		d.logger.Warn("dispatch interrupted",
			zap.Int("started", started),
			zap.Int("total", len(items)),
		)
		return fmt.Errorf("dispatch interrupted: %w", err)
	}
	return nil
}
