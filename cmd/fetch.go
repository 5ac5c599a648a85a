package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweet-harvester/internal/app"
	"github.com/JakeFAU/tweet-harvester/internal/server"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Process every batch directory under --input-dir",
		Long: `Reads <input-dir>/<batch>/*_tweets.csv files, labels IDs by file name
(fake or real), serves cached text, resolves the rest concurrently, and writes
<output-dir>/<batch>/fake_1.csv and real_1.csv. The cache is saved after every
batch and on interrupt.`,
		Args: cobra.NoArgs,
		RunE: runFetchCommand,
	}
	flags := cmd.Flags()
	flags.String("input-dir", "", "root directory containing one subdirectory per batch")
	flags.String("output-dir", "", "root directory for datasets and the cache file")
	flags.Float64("sleep", 0.02, "seconds each worker sleeps after a network call")
	flags.String("cache", "tweet_text_cache.csv", "cache file, relative to --output-dir unless absolute")
	flags.Int("max-workers", 16, "parallel resolvers per batch")
	flags.Int("flush-every", 50, "flush each dataset every N rows")
	flags.String("metrics-addr", "", "serve /healthz, /metrics and /progress on this address")
	return cmd
}

func runFetchCommand(cmd *cobra.Command, _ []string) error {
	e, err := envFrom(cmd.Context())
	if err != nil {
		return err
	}
	if err := e.cfg.ValidateFetch(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a, err := app.New(e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	serverDone := make(chan error, 1)
	if addr := e.cfg.Metrics.Addr; addr != "" {
		go func() {
			serverDone <- server.New(a.Tracker(), logger).ListenAndServe(ctx, addr)
		}()
	} else {
		serverDone <- nil
	}

	h, err := a.Harvester(ctx)
	if err != nil {
		return err
	}
	runErr := h.Run(ctx, e.cfg.Paths.InputDir, e.cfg.Paths.OutputDir)

	cancel()
	if srvErr := <-serverDone; srvErr != nil {
		logger.Warn("status server stopped with error", zap.Error(srvErr))
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("fetch interrupted, cache checkpointed", zap.Error(runErr))
		}
		return runErr
	}
	logger.Info("fetch complete")
	return nil
}
