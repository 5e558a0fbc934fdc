// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/internal/config"
	"github.com/xkilldash9x/sociallink/internal/engine"
	"github.com/xkilldash9x/sociallink/internal/metrics"
	"github.com/xkilldash9x/sociallink/internal/session"
	"github.com/xkilldash9x/sociallink/internal/store"
	"github.com/xkilldash9x/sociallink/internal/vault"
)

// Storage bundles the persistence roles the engine depends on. With a
// database all three roles are served by one store.Store; without one,
// credentials go to sealed files and the rest lives in memory.
type Storage struct {
	Credentials session.CredentialStore
	Sink        engine.InteractionSink
	Accounts    engine.AccountRepository
	Ping        func(ctx context.Context) error
	// Pool is nil for the file-backed fallback.
	Pool *pgxpool.Pool
}

// InitializeStorage connects to PostgreSQL or falls back to local storage.
func InitializeStorage(ctx context.Context, cfg config.Interface, sealer *vault.Sealer, logger *zap.Logger) (*Storage, error) {
	if cfg.Database().URL == "" {
		logger.Warn("No database configured; accounts and interactions are kept in memory and lost on exit. Credentials are stored as sealed files.",
			zap.String("credential_dir", cfg.Session().CredentialDir))
		files, err := vault.NewFileStore(cfg.Session().CredentialDir, sealer, logger)
		if err != nil {
			return nil, err
		}
		mem := store.NewMemory(logger)
		return &Storage{Credentials: files, Sink: mem, Accounts: mem, Ping: mem.Ping}, nil
	}

	pool, err := InitializePool(ctx, cfg.Database())
	if err != nil {
		return nil, err
	}
	dbStore, err := store.New(ctx, pool, sealer, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	logger.Info("PostgreSQL storage initialized.")
	return &Storage{Credentials: dbStore, Sink: dbStore, Accounts: dbStore, Ping: dbStore.Ping, Pool: pool}, nil
}

// InitializePool creates and pings a pgx connection pool.
func InitializePool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return pool, nil
}

// InitializeMetrics returns a recorder and, when enabled, the registry that
// backs it. Disabled metrics yield a no-op recorder and a nil registry.
func InitializeMetrics(cfg config.MetricsConfig) (metrics.Recorder, *prometheus.Registry) {
	if !cfg.Enabled {
		return metrics.Nop{}, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewCollector(reg), reg
}
