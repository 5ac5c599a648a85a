// Package cmd defines and implements the CLI commands for the tweet-harvester
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweet-harvester/internal/config"
	"github.com/JakeFAU/tweet-harvester/internal/harvest"
	"github.com/JakeFAU/tweet-harvester/internal/logging"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitNoBatches = 2
)

// envKeyType is the key for storing the command environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env carries what PersistentPreRunE built for the subcommand.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	closeLog func() error
}

// close flushes the logger and releases its log file.
func (e *env) close() {
	if e.logger != nil {
		_ = e.logger.Sync()
	}
	if e.closeLog != nil {
		_ = e.closeLog()
	}
}

// newRootCmd builds the command tree. PersistentPreRunE fills state, which the
// caller closes once the command returns.
func newRootCmd(state *env) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "tweet-harvester",
		Short: "Fetch tweet text without API keys and build labeled datasets.",
		Long: `tweet-harvester resolves tweet IDs through public mirrors
(fxtwitter, vxtwitter, oEmbed, optionally Nitter), caches every result, and
writes per-batch fake_1.csv / real_1.csv datasets from labeled ID files.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, closeLog, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				File:        cfg.Logging.File,
				MaxSizeMB:   cfg.Logging.MaxSizeMB,
				MaxBackups:  cfg.Logging.MaxBackups,
				Compress:    cfg.Logging.Compress,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			state.cfg, state.logger, state.closeLog = cfg, logger, closeLog
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, state))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newFetchCmd(), newResolveCmd())
	return cmd
}

func envFrom(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	state := &env{}
	defer state.close()
	root := newRootCmd(state)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	if errors.Is(err, harvest.ErrNoBatches) {
		return exitNoBatches
	}
	return exitFailure
}
