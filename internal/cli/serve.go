package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/jobcascade/internal/lifecycle"
	"github.com/me/jobcascade/internal/scheduler"
	"github.com/me/jobcascade/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server and the build queue dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}

			// Graceful shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, lifecycle.UserFunc(server.UserFromContext), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var opts []server.Option
			if a.metrics != nil {
				opts = append(opts, server.WithMetrics(a.metrics))
			}
			srv := server.New(a.store, a.projects, a.resolver, a.initializer, a.graph, logger, opts...)

			loop := scheduler.NewLoop(a.store, a.projects, a.resolver, a.graph,
				scheduler.Config{PollInterval: cfg.Queue.PollInterval}, logger,
				scheduler.WithMetrics(a.metrics))
			go func() {
				if err := loop.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("scheduler stopped", "error", err)
				}
			}()
			defer loop.Stop()

			httpServer := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", cfg.Server.Addr, "projects", a.projects.Len(),
					"authorization", cfg.Authorization.Strategy)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
