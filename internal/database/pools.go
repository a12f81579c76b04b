package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/okx-feed/internal/config"
)

// Connect creates a connection pool and pings it, retrying with
// exponential backoff until cfg.ConnectTimeout elapses or ctx is done.
func Connect(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = cfg.ConnectTimeout.Std()

	var pool *pgxpool.Pool
	op := func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("create pool: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("ping database: %w", err)
		}
		pool = p
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("database not ready, retrying",
			"host", cfg.Host,
			"name", cfg.Name,
			"retry_in", next,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}

	logger.Info("database connected", "host", cfg.Host, "name", cfg.Name, "max_conns", cfg.MaxConns)
	return pool, nil
}
