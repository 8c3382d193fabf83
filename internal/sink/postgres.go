package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// Copier is the part of a pgx pool or connection used by Postgres.
type Copier interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

var snapshotColumns = []string{"run_id", "ts_ns", "instrument_id", "seq", "action", "bids", "asks"}

var metricColumns = []string{
	"run_id", "instrument_id", "second",
	"best_bid", "best_ask", "bid_size", "ask_size",
	"spread_abs", "spread_rel", "imbalance", "microprice",
	"total_bid_volume", "total_ask_volume", "avg_bid_price", "avg_ask_price", "depth_ratio",
	"update_count", "cancel_count", "midprice", "depth_imbalance",
	"depth_microprice", "top_volume_ratio",
}

// WriterMetrics tracks rows copied into the warehouse.
type WriterMetrics struct {
	SnapshotRows int64
	MetricRows   int64
	Flushes      int64
}

// Postgres batches both record streams and copies them into book_snapshots
// and liquidity_1s, tagging every row with the run id.
type Postgres struct {
	db        Copier
	runID     uuid.UUID
	batchSize int
	logger    *slog.Logger

	snapshots [][]any
	metrics   [][]any
	stats     WriterMetrics
	closed    bool
}

// NewPostgres creates a warehouse sink. batchSize < 1 means 1000.
func NewPostgres(db Copier, runID uuid.UUID, batchSize int, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize < 1 {
		batchSize = 1000
	}
	return &Postgres{
		db:        db,
		runID:     runID,
		batchSize: batchSize,
		logger:    logger,
		snapshots: make([][]any, 0, batchSize),
		metrics:   make([][]any, 0, batchSize),
	}
}

type levelJSON struct {
	Rank  int     `json:"rank"`
	Price float64 `json:"price"`
	Size  int64   `json:"size"`
}

func levelsJSON(levels []model.Level) ([]byte, error) {
	out := make([]levelJSON, len(levels))
	for i, lv := range levels {
		out[i] = levelJSON{Rank: lv.Rank, Price: lv.Price, Size: lv.Size}
	}
	return json.Marshal(out)
}

func (p *Postgres) WriteSnapshot(ctx context.Context, s model.Snapshot) error {
	bids, err := levelsJSON(s.Bids)
	if err != nil {
		return fmt.Errorf("encode bids: %w", err)
	}
	asks, err := levelsJSON(s.Asks)
	if err != nil {
		return fmt.Errorf("encode asks: %w", err)
	}
	p.snapshots = append(p.snapshots, []any{
		p.runID, s.Timestamp, s.Instrument, int64(s.Seq), s.Action, bids, asks,
	})
	if len(p.snapshots) >= p.batchSize {
		return p.flushSnapshots(ctx)
	}
	return nil
}

func (p *Postgres) WriteMetric(ctx context.Context, r model.MetricRecord) error {
	p.metrics = append(p.metrics, []any{
		p.runID, r.Instrument, r.Second,
		r.BestBid, r.BestAsk, r.BidSize, r.AskSize,
		r.SpreadAbs, r.SpreadRel, r.Imbalance, r.Microprice,
		r.TotalBidVolume, r.TotalAskVolume, r.AvgBidPrice, r.AvgAskPrice, r.DepthRatio,
		r.UpdateCount, r.CancelCount, r.Midprice, r.DepthImbalance,
		r.DepthMicroprice, r.TopVolumeRatio,
	})
	if len(p.metrics) >= p.batchSize {
		return p.flushMetrics(ctx)
	}
	return nil
}

func (p *Postgres) flushSnapshots(ctx context.Context) error {
	if len(p.snapshots) == 0 {
		return nil
	}
	n, err := p.copy(ctx, "book_snapshots", snapshotColumns, p.snapshots)
	if err != nil {
		return err
	}
	p.stats.SnapshotRows += n
	p.snapshots = p.snapshots[:0]
	return nil
}

func (p *Postgres) flushMetrics(ctx context.Context) error {
	if len(p.metrics) == 0 {
		return nil
	}
	n, err := p.copy(ctx, "liquidity_1s", metricColumns, p.metrics)
	if err != nil {
		return err
	}
	p.stats.MetricRows += n
	p.metrics = p.metrics[:0]
	return nil
}

func (p *Postgres) copy(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	start := time.Now()
	n, err := p.db.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy %d rows into %s: %w", len(rows), table, err)
	}
	p.stats.Flushes++
	p.logger.Debug("flushed rows",
		"table", table,
		"rows", n,
		"duration", time.Since(start),
	)
	return n, nil
}

// Close copies whatever is still batched. Later calls do nothing, so one
// Postgres may be registered as both a snapshot and a metric writer.
func (p *Postgres) Close(ctx context.Context) error {
	if p.closed {
		return nil
	}
	if err := p.flushSnapshots(ctx); err != nil {
		return err
	}
	if err := p.flushMetrics(ctx); err != nil {
		return err
	}
	p.closed = true
	p.logger.Info("warehouse sink closed",
		"run_id", p.runID,
		"snapshot_rows", p.stats.SnapshotRows,
		"metric_rows", p.stats.MetricRows,
	)
	return nil
}

// Discard drops batched rows. Rows already copied stay, keyed by run id.
func (p *Postgres) Discard() {
	p.snapshots = p.snapshots[:0]
	p.metrics = p.metrics[:0]
}

// Stats returns current metrics.
func (p *Postgres) Stats() WriterMetrics {
	return p.stats
}
