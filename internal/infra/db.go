package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbMaxConns       = 10
	dbMinConns       = 1
	dbConnLifetime   = time.Hour
	dbConnIdleTime   = 30 * time.Minute
	dbConnectTimeout = 10 * time.Second
)

// NewDBPool opens a pgx connection pool and verifies the database is
// reachable before returning it.
func NewDBPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = dbMaxConns
	poolCfg.MinConns = dbMinConns
	poolCfg.MaxConnLifetime = dbConnLifetime
	poolCfg.MaxConnIdleTime = dbConnIdleTime

	ctx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
