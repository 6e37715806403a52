package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// NewPool opens the draft store pool and waits for the database to answer.
// appName shows up in pg_stat_activity, so replicas are told apart.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := poolConfig(cfg, appName)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	policy := retry.Config{
		MaxAttempts: uint(max(cfg.ConnectRetries, 1)),
		Delay:       cfg.ConnectRetryDelay,
		OnRetry: func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("host", cfg.Host).Msg("postgres not ready")
		},
	}
	if err := retry.Do(ctx, policy, func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// poolConfig sizes the pool and bounds statements. Draft writes lock one
// row with SELECT ... FOR UPDATE, so a lock wait is capped like a statement.
func poolConfig(cfg *config.DatabaseConfig, appName string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		poolConfig.MinConns = int32(min(cfg.MinConnections, int(poolConfig.MaxConns)))
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = 10 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	params := poolConfig.ConnConfig.RuntimeParams
	if appName == "" {
		appName = "cashdesk"
	}
	params["application_name"] = appName
	if cfg.StatementTimeout > 0 {
		ms := strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
		params["statement_timeout"] = ms
		params["lock_timeout"] = ms
	}

	return poolConfig, nil
}
