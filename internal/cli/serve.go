package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/lunadb/internal/config"
	"github.com/roach88/lunadb/internal/server"
	"github.com/roach88/lunadb/internal/service"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config string
	Addr   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document store over websockets",
		Long: `Open the configured storage backend and serve calls on /ws until
interrupted.

Configuration comes from --config (YAML) and LUNADB_* environment
variables. Without a file an in-memory store is served on :8080.

Example:
  lunadb serve --config ./lunadb.yaml
  LUNADB_BACKEND=sqlite LUNADB_DSN=./lunadb.db lunadb serve --addr :9000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML configuration")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides configuration)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, cfg.Log.SlogLevel())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("opening storage", "backend", cfg.Storage.Backend, "namespace", cfg.Storage.Namespace)
	svc, closeStorage, err := openService(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	defer closeStorage()

	// The loop outlives ctx so that calls queued before shutdown still run.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := service.NewLoop(svc)
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()

	srv := server.New(loop, server.WithLogger(logger))
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", cfg.Addr)
	serveErr := srv.Serve(ctx, cfg.Addr)

	loop.Close()
	if err := <-loopDone; err != nil {
		return WrapExitError(ExitFailure, "service loop error", err)
	}
	if serveErr != nil {
		return WrapExitError(ExitFailure, "server error", serveErr)
	}

	logger.Info("server stopped gracefully")
	return nil
}
