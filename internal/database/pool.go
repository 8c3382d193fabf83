package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Schema creates the record tables if they do not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS book_snapshots (
    run_id        UUID        NOT NULL,
    ts_ns         BIGINT      NOT NULL,
    instrument_id BIGINT      NOT NULL,
    seq           BIGINT      NOT NULL,
    action        SMALLINT,
    bids          JSONB       NOT NULL,
    asks          JSONB       NOT NULL,
    PRIMARY KEY (run_id, ts_ns, instrument_id, seq)
);

CREATE TABLE IF NOT EXISTS liquidity_1s (
    run_id           UUID             NOT NULL,
    instrument_id    BIGINT           NOT NULL,
    second           BIGINT           NOT NULL,
    best_bid         DOUBLE PRECISION,
    best_ask         DOUBLE PRECISION,
    bid_size         BIGINT,
    ask_size         BIGINT,
    spread_abs       DOUBLE PRECISION,
    spread_rel       DOUBLE PRECISION,
    imbalance        DOUBLE PRECISION,
    microprice       DOUBLE PRECISION,
    total_bid_volume BIGINT           NOT NULL,
    total_ask_volume BIGINT           NOT NULL,
    avg_bid_price    DOUBLE PRECISION,
    avg_ask_price    DOUBLE PRECISION,
    depth_ratio      DOUBLE PRECISION,
    update_count     BIGINT           NOT NULL,
    cancel_count     BIGINT           NOT NULL,
    midprice         DOUBLE PRECISION,
    depth_imbalance  DOUBLE PRECISION,
    depth_microprice DOUBLE PRECISION,
    top_volume_ratio DOUBLE PRECISION,
    PRIMARY KEY (run_id, instrument_id, second)
);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
