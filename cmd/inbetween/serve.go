package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/gp-inbetween/internal/bootstrap"
	"github.com/maauso/gp-inbetween/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		addr    string
		origins []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Long: `Starts an HTTP server exposing generation, feedback, statistics and
Prometheus metrics so a host add-on can drive the pipeline over localhost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, logger, err := a.load(ctx, cmd, false)
			if err != nil {
				return err
			}

			logger.Info("starting inbetween server",
				slog.String("addr", addr),
				slog.String("backend", cfg.API.Backend),
				slog.String("output_dir", cfg.Output.Dir),
				slog.String("feedback", cfg.Feedback.Backend),
				slog.Bool("s3_enabled", cfg.S3Enabled()),
			)

			deps, err := bootstrap.NewDependencies(ctx, cfg, logger, bootstrap.WithRuntimeMetrics())
			if err != nil {
				return fmt.Errorf("initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Close() }()

			routerCfg := server.DefaultConfig()
			if len(origins) > 0 {
				routerCfg.AllowedOrigins = origins
			}
			handlers := server.NewHandlers(deps.Pipeline, deps.Runs, deps.Feedback, logger)
			router := server.NewRouter(handlers, deps.Metrics.Handler(), logger, routerCfg)

			srv := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			err = listen(ctx, srv, logger)

			// Runs write to the feedback store, so they finish before deps.Close.
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if drainErr := deps.Runs.Shutdown(drainCtx); drainErr != nil {
				logger.Warn("runs still in flight at exit", slog.String("error", drainErr.Error()))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "allowed CORS origin, repeatable (default localhost)")
	return cmd
}

// listen serves until ctx is cancelled, then shuts down gracefully.
func listen(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
