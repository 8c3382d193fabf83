package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/book"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/chunk"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/config"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/counts"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/feed"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/liquidity"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/mapping"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/metrics"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/router"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/sink"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/source"
)

// ErrDirtyChunkDir is returned by Run when the chunk directory already holds
// chunks from an earlier run.
var ErrDirtyChunkDir = errors.New("chunk directory is not empty")

// ErrNoRunID is returned by Resume when warehouse rows are written without a
// configured run id; a fresh random id would not match the interrupted run.
var ErrNoRunID = errors.New("run.id is required to resume into postgres")

// Pipeline runs ingest, merge and emit for one configuration.
type Pipeline struct {
	cfg    *config.Config
	runID  uuid.UUID
	rec    *metrics.Recorder
	logger *slog.Logger
}

// New creates a pipeline. rec may be nil when no metrics are exported.
func New(cfg *config.Config, rec *metrics.Recorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.New()
	}

	runID := RunID(cfg.Run.ID)

	return &Pipeline{
		cfg:    cfg,
		runID:  runID,
		rec:    rec,
		logger: logger.With("run_id", runID),
	}
}

// RunID maps a configured run name to a UUID. A UUID is used as is, any
// other name hashes to a stable UUID, and an empty name gets a random one.
func RunID(name string) uuid.UUID {
	if name == "" {
		return uuid.New()
	}
	if id, err := uuid.Parse(name); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}

// RunID identifies this run in warehouse rows and logs.
func (p *Pipeline) RunID() uuid.UUID {
	return p.runID
}

// Tokenizer builds the entry tokenizer from the feed delimiters.
func Tokenizer(cfg config.FeedConfig) feed.Tokenizer {
	return feed.Tokenizer{Open: cfg.Open[0], Close: cfg.Close[0], Sep: cfg.Sep[0]}
}

// MappingOptions converts the inference settings.
func MappingOptions(cfg config.MappingConfig) mapping.Options {
	return mapping.Options{
		Marker:             cfg.Marker,
		SideCheckEntries:   cfg.SideCheckEntries,
		SideCheckMinValues: cfg.SideCheckMinValues,
		HeavyRatio:         cfg.HeavyRatio,
	}
}

// ResolveMapping loads the configured mapping file or infers a mapping from
// the head of src. The returned source replays any sampled lines.
func (p *Pipeline) ResolveMapping(ctx context.Context, src source.Source) (model.Mapping, source.Source, error) {
	mc := p.cfg.Mapping
	if mc.File != "" {
		m, err := mapping.Load(mc.File)
		if err != nil {
			return model.Mapping{}, nil, err
		}
		p.logger.Info("mapping loaded", "path", mc.File)
		return m, src, nil
	}

	sample, rest, err := source.Sample(ctx, src, mc.SampleLines)
	if err != nil {
		return model.Mapping{}, nil, fmt.Errorf("sample source: %w", err)
	}
	m, err := mapping.InferLines(sample, Tokenizer(p.cfg.Feed), MappingOptions(mc))
	if err != nil {
		return model.Mapping{}, nil, err
	}
	p.logger.Info("mapping inferred",
		"sample_lines", len(sample),
		"action", m.Action,
		"side", m.Side,
		"level", m.Level,
		"instrument", m.Instrument,
		"price", m.Price,
		"size", m.Size,
		"timestamp", m.Timestamp,
	)

	if mc.SaveTo != "" {
		if err := mapping.Save(mc.SaveTo, m); err != nil {
			return model.Mapping{}, nil, err
		}
	}
	return m, rest, nil
}

func (p *Pipeline) countsConfig() counts.Config {
	return counts.Config{
		Backend:    p.cfg.Counts.Backend,
		Dir:        p.cfg.Counts.Dir,
		FlushEvery: p.cfg.Counts.FlushEvery,
	}
}

func (p *Pipeline) mergeConfig() chunk.MergeConfig {
	return chunk.MergeConfig{
		Batch:       p.cfg.Pipeline.MergeBatch,
		Parallelism: p.cfg.Pipeline.MergeParallelism,
	}
}

// Run ingests src to completion, merges the spooled chunks and streams the
// ordered result to out. out is closed on success and discarded on failure.
func (p *Pipeline) Run(ctx context.Context, src source.Source, out *sink.Multi) (Stats, error) {
	stats := Stats{RunID: p.runID, Ignored: make(map[string]int64)}

	store, err := chunk.OpenStore(p.cfg.Pipeline.ChunkDir, p.logger)
	if err != nil {
		out.Discard()
		return stats, err
	}
	existing, err := store.List()
	if err != nil {
		out.Discard()
		return stats, err
	}
	if len(existing) > 0 {
		out.Discard()
		return stats, fmt.Errorf("%w: %s holds %d chunks, resume or clear it", ErrDirtyChunkDir, store.Dir(), len(existing))
	}

	// Counts persisted by an earlier run would be added to.
	if p.cfg.Counts.Backend == "pebble" {
		if err := os.RemoveAll(p.cfg.Counts.Dir); err != nil {
			out.Discard()
			return stats, fmt.Errorf("reset counts dir: %w", err)
		}
	}
	cs, err := counts.Open(p.countsConfig(), p.logger)
	if err != nil {
		out.Discard()
		return stats, err
	}
	defer cs.Close()

	m, src, err := p.ResolveMapping(ctx, src)
	if err != nil {
		out.Discard()
		return stats, err
	}
	stats.Mapping = m

	if err := p.ingest(ctx, src, m, store, cs, &stats); err != nil {
		out.Discard()
		return stats, err
	}
	if err := cs.Flush(); err != nil {
		out.Discard()
		return stats, fmt.Errorf("flush counts: %w", err)
	}
	// Chunks and counts are durable; Resume can finish from here.
	if err := source.Commit(ctx, src); err != nil {
		p.logger.Warn("feed commit failed, a restart will re-read this input", "error", err)
	}

	if err := p.finish(ctx, store, cs, out, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (p *Pipeline) ingest(ctx context.Context, src source.Source, m model.Mapping, store *chunk.Store, cs counts.Store, stats *Stats) error {
	pc := p.cfg.Pipeline
	rt := router.NewRouter[model.RawEvent](router.RouterConfig{
		Partitions:    pc.Workers,
		QueueCapacity: pc.QueueCapacity,
	}, p.logger)

	g, gctx := errgroup.WithContext(ctx)

	workers := make([]*worker, rt.Partitions())
	for i := range workers {
		w := &worker{
			id:       i,
			queue:    rt.Queue(i),
			registry: book.NewRegistry(p.cfg.Book.MaxDepth, p.cfg.Book.SnapshotLevels),
			spool:    chunk.NewSpooler(store, pc.ChunkCapacity),
			rec:      p.rec,
			logger:   p.logger,
		}
		workers[i] = w
		g.Go(func() error { return w.run(gctx) })
	}

	rd := &reader{
		src:      src,
		tok:      Tokenizer(p.cfg.Feed),
		mapping:  m,
		counts:   cs,
		router:   rt,
		rec:      p.rec,
		logger:   p.logger,
		progress: rate.Sometimes{Interval: p.cfg.Log.ProgressInterval},
	}
	g.Go(func() error { return rd.run(gctx) })

	p.logger.Info("ingest started", "workers", len(workers))
	err := g.Wait()

	stats.LinesScanned = rd.lines
	stats.EntriesDecoded = rd.entries
	stats.MalformedEntries = rd.malformed
	stats.FieldErrors = rd.fieldErrs
	if rd.noInstr > 0 {
		stats.Ignored[book.MissingInstrument.String()] += rd.noInstr
	}
	for _, w := range workers {
		stats.addWorker(&w.stats)
	}

	if err != nil {
		// Returned chunks stay on disk; with ctx cancelled they only cover
		// a prefix of the input.
		return fmt.Errorf("ingest: %w", err)
	}
	return nil
}

// Resume finishes a run whose ingest completed but whose merge or emit did
// not: it merges whatever chunks are in the chunk directory and streams the
// result to out.
func (p *Pipeline) Resume(ctx context.Context, out *sink.Multi) (Stats, error) {
	stats := Stats{RunID: p.runID, Ignored: make(map[string]int64)}

	if err := p.CheckResume(); err != nil {
		out.Discard()
		return stats, err
	}

	store, err := chunk.OpenStore(p.cfg.Pipeline.ChunkDir, p.logger)
	if err != nil {
		out.Discard()
		return stats, err
	}
	if p.cfg.Counts.Backend != "pebble" {
		p.logger.Warn("counts are not persisted by the memory backend, resumed records carry zero update and cancel counts")
	}
	cs, err := counts.Open(p.countsConfig(), p.logger)
	if err != nil {
		out.Discard()
		return stats, err
	}
	defer cs.Close()

	if err := p.finish(ctx, store, cs, out, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// CheckResume reports whether Resume can attribute its output to the
// interrupted run.
func (p *Pipeline) CheckResume() error {
	if p.cfg.Output.Postgres.Enabled && p.cfg.Run.ID == "" {
		return ErrNoRunID
	}
	return nil
}

func (p *Pipeline) finish(ctx context.Context, store *chunk.Store, cs counts.Store, out *sink.Multi, stats *Stats) error {
	merger := chunk.NewMerger(store, p.mergeConfig(), p.logger)
	final, ms, ok, err := merger.MergeAll(ctx)
	stats.MergeRounds = ms.Rounds
	stats.MergeBatches = ms.Batches
	p.rec.MergeBatches.Add(float64(ms.Batches))
	if err != nil {
		out.Discard()
		return fmt.Errorf("merge chunks: %w", err)
	}
	if !ok {
		p.logger.Warn("no snapshots to emit", "chunk_dir", store.Dir())
		return out.Close(ctx)
	}

	es, err := Emit(ctx, store, final, cs, out, p.logger)
	stats.MetricRecords = es.Records
	p.rec.MetricRecords.Add(float64(es.Records))
	if err != nil {
		out.Discard()
		return err
	}
	if err := out.Close(ctx); err != nil {
		return fmt.Errorf("close sinks: %w", err)
	}

	if !p.cfg.Pipeline.KeepChunks {
		if err := store.Remove(final); err != nil {
			return err
		}
	}
	return nil
}

// EmitStats counts what Emit streamed.
type EmitStats struct {
	Snapshots int64
	Records   int64
}

// Emit streams the merged chunk ref to out's snapshot writers and through the
// liquidity aggregator to its metric writers. It does not close out.
func Emit(ctx context.Context, store *chunk.Store, ref chunk.Ref, cs counts.Store, out *sink.Multi, logger *slog.Logger) (EmitStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var es EmitStats

	agg := liquidity.NewAggregator(cs, func(r model.MetricRecord) error {
		return out.WriteMetric(ctx, r)
	}, logger)

	err := store.Each(ref, func(s model.Snapshot) error {
		if es.Snapshots%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		es.Snapshots++
		if err := out.WriteSnapshot(ctx, s); err != nil {
			return err
		}
		return agg.Add(s)
	})
	if err == nil {
		err = agg.Close()
	}
	es.Records = agg.Records()
	if err != nil {
		return es, fmt.Errorf("emit %s: %w", ref.Path, err)
	}

	logger.Info("records emitted",
		"snapshots", es.Snapshots,
		"metric_records", es.Records,
	)
	return es, nil
}
