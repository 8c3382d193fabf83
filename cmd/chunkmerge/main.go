package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/config"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/pipeline"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/sink"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/liqreplay.example.yaml", "path to config file")
	chunkDir := flag.String("chunks", "", "chunk directory (overrides pipeline.chunk_dir)")
	flag.Parse()

	_ = godotenv.Load() // .env is optional

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *chunkDir != "" {
		cfg.Pipeline.ChunkDir = *chunkDir
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting chunkmerge", version.Attr(), "chunk_dir", cfg.Pipeline.ChunkDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg, nil, logger)
	if err := p.CheckResume(); err != nil {
		logger.Error("cannot resume", "error", err)
		os.Exit(1)
	}
	if cfg.Run.ID == "" {
		logger.Warn("run.id is empty, resumed output gets a new run id", "run_id", p.RunID())
	}

	out, release, err := sink.Open(ctx, cfg.Output, cfg.Book.SnapshotLevels, p.RunID(), logger)
	if err != nil {
		logger.Error("failed to open sinks", "error", err)
		os.Exit(1)
	}

	stats, err := p.Resume(ctx, out)
	release()
	if err != nil {
		logger.Error("resume failed", "error", err)
		os.Exit(1)
	}
	logger.Info("resume complete",
		"run_id", stats.RunID,
		"merge_rounds", stats.MergeRounds,
		"merge_batches", stats.MergeBatches,
		"metric_records", stats.MetricRecords,
	)
}
