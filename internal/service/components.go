// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/internal/config"
	"github.com/xkilldash9x/sociallink/internal/credentials"
	"github.com/xkilldash9x/sociallink/internal/engine"
	"github.com/xkilldash9x/sociallink/internal/metrics"
	"github.com/xkilldash9x/sociallink/internal/platform"
	"github.com/xkilldash9x/sociallink/internal/qrconnect"
	"github.com/xkilldash9x/sociallink/internal/ratelimit"
	"github.com/xkilldash9x/sociallink/internal/session"
)

// Components holds every initialized service a command needs and owns their
// shutdown order.
type Components struct {
	Config     config.Interface
	Platform   *platform.Platform
	Normalizer *credentials.Normalizer
	Validator  *session.Validator
	Sessions   *session.Manager
	QR         *qrconnect.Orchestrator
	Limiter    *ratelimit.Limiter
	Engine     *engine.Engine
	Storage    *Storage

	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
	Metrics  metrics.Recorder

	logger *zap.Logger
}

// Health reports whether the storage backend is reachable.
func (c *Components) Health(ctx context.Context) error {
	if c.Storage == nil || c.Storage.Ping == nil {
		return nil
	}
	return c.Storage.Ping(ctx)
}

// Jobs returns the periodic work a long-running process schedules. Jobs whose
// interval is not configured are left out.
func (c *Components) Jobs() []engine.Job {
	cfg := c.Config
	var jobs []engine.Job

	if iv := cfg.Session().EvictInterval; iv > 0 && c.Sessions != nil {
		maxIdle := cfg.Session().MaxIdle
		jobs = append(jobs, engine.Job{
			Name:     "evict-stale-sessions",
			Interval: iv,
			Run: func(ctx context.Context) error {
				evicted := c.Sessions.EvictStale(ctx, maxIdle)
				if len(evicted) > 0 {
					c.logger.Info("Evicted idle sessions.", zap.Strings("accounts", evicted))
				}
				return nil
			},
		})
	}
	if iv := cfg.QR().CollectPeriod; iv > 0 && c.QR != nil {
		jobs = append(jobs, engine.Job{
			Name:     "collect-connections",
			Interval: iv,
			Run: func(ctx context.Context) error {
				if n := c.QR.Collect(ctx); n > 0 {
					c.logger.Info("Collected expired connections.", zap.Int("count", n))
				}
				return nil
			},
		})
	}
	if c.Limiter != nil {
		jobs = append(jobs, engine.Job{
			Name:     "prune-rate-counters",
			Interval: time.Hour,
			Run: func(context.Context) error {
				c.Limiter.Prune()
				return nil
			},
		})
	}
	if iv := cfg.Engine().SyncInterval; iv > 0 && c.Engine != nil {
		jobs = append(jobs, engine.Job{
			Name:     "sync-accounts",
			Interval: iv,
			Run: func(ctx context.Context) error {
				_, err := c.Engine.SyncAll(ctx)
				return err
			},
		})
	}
	return jobs
}

// Shutdown closes components in reverse dependency order. It is safe on a
// partially initialized struct.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	// Browsers may take a while to exit; do not depend on the caller's context.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if c.QR != nil {
		if err := c.QR.Close(shutdownCtx); err != nil {
			logger.Warn("Error closing pending connections.", zap.Error(err))
		}
	}
	if c.Sessions != nil {
		if err := c.Sessions.Close(shutdownCtx); err != nil {
			logger.Warn("Error closing sessions.", zap.Error(err))
		} else {
			logger.Debug("Session manager shut down.")
		}
	}
	if c.Storage != nil && c.Storage.Pool != nil {
		c.Storage.Pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	logger.Info("All components shut down.")
}
