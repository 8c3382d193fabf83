package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/config"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/metrics"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/pipeline"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/sink"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/source"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/liqreplay.example.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load() // .env is optional

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting liqreplay", version.Attr(), "config", *configPath)

	if err := run(cfg, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	rec := metrics.New()
	p := pipeline.New(cfg, rec, logger)

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: createHandler(cfg, p, rec),
		}
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	src, err := source.Open(ctx, cfg.Source, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	out, release, err := sink.Open(ctx, cfg.Output, cfg.Book.SnapshotLevels, p.RunID(), logger)
	if err != nil {
		return err
	}
	defer release()
	if out.Empty() {
		logger.Warn("no output configured, records are computed and dropped")
	}

	stats, err := p.Run(ctx, src, out)
	stats.Log(logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("run interrupted, finished chunks stay in place", "chunk_dir", cfg.Pipeline.ChunkDir)
		}
		return err
	}
	return nil
}

// createHandler serves Prometheus metrics and a small health document.
func createHandler(cfg *config.Config, p *pipeline.Pipeline, rec *metrics.Recorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, rec.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "running",
			"run_id":  p.RunID().String(),
			"version": version.Version,
		})
	})
	return mux
}
