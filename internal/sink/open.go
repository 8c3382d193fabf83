package sink

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/config"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/database"
)

// Open builds the writers enabled in cfg. The returned release func closes
// the database pool, if one was opened, and must be called after Close.
func Open(ctx context.Context, cfg config.OutputConfig, levels int, runID uuid.UUID, logger *slog.Logger) (*Multi, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := &Multi{}
	release := func() {}

	if cfg.SnapshotsCSV != "" {
		w, err := NewSnapshotCSV(cfg.SnapshotsCSV, levels)
		if err != nil {
			return nil, nil, err
		}
		out.Snapshots = append(out.Snapshots, w)
	}

	if cfg.MetricsCSV != "" {
		w, err := NewMetricCSV(cfg.MetricsCSV)
		if err != nil {
			out.Discard()
			return nil, nil, err
		}
		out.Metrics = append(out.Metrics, w)
	}

	if cfg.Postgres.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Postgres.DB.Host,
			"port", cfg.Postgres.DB.Port,
			"database", cfg.Postgres.DB.Name,
		)
		pool, err := database.Connect(ctx, cfg.Postgres.DB)
		if err != nil {
			out.Discard()
			return nil, nil, err
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			out.Discard()
			return nil, nil, err
		}
		pg := NewPostgres(pool, runID, cfg.Postgres.BatchSize, logger)
		out.Snapshots = append(out.Snapshots, pg)
		out.Metrics = append(out.Metrics, pg)
		release = pool.Close
	}

	return out, release, nil
}
