package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/internal/engine"
	"github.com/xkilldash9x/sociallink/internal/metrics"
	"github.com/xkilldash9x/sociallink/internal/observability"
	"github.com/xkilldash9x/sociallink/internal/service"
)

func newServeCmd(factory service.ComponentFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled syncs and maintenance until interrupted",
		Long: `Runs the periodic jobs (account sync fan-out, idle session eviction,
handshake collection and rate counter pruning) and, when metrics are enabled,
serves /metrics and /healthz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory, func(ctx context.Context, c *service.Components) error {
				return serve(ctx, c, observability.GetLogger())
			})
		},
	}
}

func serve(ctx context.Context, c *service.Components, logger *zap.Logger) error {
	scheduler, err := engine.NewScheduler(logger, c.Jobs()...)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	scheduler.Start(runCtx)
	defer func() {
		cancel()
		scheduler.Stop()
	}()

	var srv *http.Server
	serveErr := make(chan error, 1)
	if c.Registry != nil {
		srv = &http.Server{
			Addr:              c.Config.Metrics().Addr,
			Handler:           metrics.NewOpsRouter(c.Registry, c.Health),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Serving ops endpoints.", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received.")
	case err := <-serveErr:
		logger.Error("Ops server failed.", zap.Error(err))
		return err
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Ops server shutdown error.", zap.Error(err))
		}
	}
	return nil
}
