package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool used for schema setup.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the market data tables. Each table's unique key backs the
// writers' ON CONFLICT DO NOTHING inserts.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tickers (
		inst_id      TEXT             NOT NULL,
		inst_type    TEXT             NOT NULL DEFAULT '',
		exchange_ts  TIMESTAMPTZ      NOT NULL,
		received_at  TIMESTAMPTZ      NOT NULL,
		last         DOUBLE PRECISION,
		last_size    DOUBLE PRECISION,
		bid_price    DOUBLE PRECISION,
		bid_size     DOUBLE PRECISION,
		ask_price    DOUBLE PRECISION,
		ask_size     DOUBLE PRECISION,
		open_24h     DOUBLE PRECISION,
		high_24h     DOUBLE PRECISION,
		low_24h      DOUBLE PRECISION,
		vol_24h      DOUBLE PRECISION,
		vol_ccy_24h  DOUBLE PRECISION,
		session_id   UUID             NOT NULL,
		UNIQUE (inst_id, exchange_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		inst_id      TEXT             NOT NULL,
		trade_id     TEXT             NOT NULL,
		exchange_ts  TIMESTAMPTZ      NOT NULL,
		received_at  TIMESTAMPTZ      NOT NULL,
		price        DOUBLE PRECISION NOT NULL,
		size         DOUBLE PRECISION NOT NULL,
		side         TEXT             NOT NULL,
		session_id   UUID             NOT NULL,
		UNIQUE (inst_id, trade_id, exchange_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		channel      TEXT        NOT NULL,
		inst_id      TEXT        NOT NULL,
		action       TEXT        NOT NULL,
		exchange_ts  TIMESTAMPTZ NOT NULL,
		received_at  TIMESTAMPTZ NOT NULL,
		seq_id       BIGINT      NOT NULL,
		prev_seq_id  BIGINT      NOT NULL,
		checksum     BIGINT      NOT NULL,
		asks         JSONB       NOT NULL,
		bids         JSONB       NOT NULL,
		seq_gap      BOOLEAN     NOT NULL DEFAULT FALSE,
		session_id   UUID        NOT NULL,
		UNIQUE (channel, inst_id, exchange_ts, seq_id)
	)`,
}

// Migrate applies Schema in order.
func Migrate(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
