package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/book"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/chunk"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/counts"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/feed"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/metrics"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/router"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/source"
)

// reader turns source lines into routed events.
type reader struct {
	src     source.Source
	tok     feed.Tokenizer
	mapping model.Mapping
	counts  counts.Store
	router  *router.Router[model.RawEvent]
	rec     *metrics.Recorder
	logger  *slog.Logger

	progress rate.Sometimes

	lines     int64
	entries   int64
	malformed int64
	fieldErrs int64
	noInstr   int64
}

func (r *reader) run(ctx context.Context) error {
	defer r.router.Close()

	for {
		line, err := r.src.Next(ctx)
		if err == io.EOF {
			r.logProgress("ingest finished")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		r.lines++
		r.rec.LinesScanned.Inc()

		entries, malformed := r.tok.Tokenize(line)
		if malformed > 0 {
			r.malformed += int64(malformed)
			r.rec.MalformedEntries.Add(float64(malformed))
		}

		for _, tokens := range entries {
			if err := r.handle(ctx, tokens); err != nil {
				return err
			}
		}

		r.progress.Do(func() { r.logProgress("ingest progress") })
	}
}

func (r *reader) handle(ctx context.Context, tokens []string) error {
	ev := feed.Decode(tokens, r.mapping)
	r.entries++
	r.rec.EntriesDecoded.Inc()
	if ev.BadFields > 0 {
		r.fieldErrs += int64(ev.BadFields)
		r.rec.FieldErrors.Add(float64(ev.BadFields))
	}

	if key, c, ok := counts.Classify(ev); ok {
		if err := r.counts.Add(key, c); err != nil {
			return fmt.Errorf("count events: %w", err)
		}
	}

	if !ev.Instrument.Valid {
		r.noInstr++
		r.rec.Ignored(book.MissingInstrument.String())
		return nil
	}
	return r.router.Route(ctx, ev.Instrument.V, ev)
}

func (r *reader) logProgress(msg string) {
	stats := r.router.Stats()
	backlog := 0
	for i, q := range stats.Partitions {
		backlog += q.Count
		r.rec.SetQueueDepth(i, q.Count)
	}
	r.logger.Info(msg,
		"lines", r.lines,
		"entries", r.entries,
		"malformed", r.malformed,
		"field_errors", r.fieldErrs,
		"queued", backlog,
	)
}

// worker applies one partition's events to its ladders and spools the
// resulting snapshots.
type worker struct {
	id       int
	queue    *router.Queue[model.RawEvent]
	registry *book.Registry
	spool    *chunk.Spooler
	rec      *metrics.Recorder
	logger   *slog.Logger

	stats workerStats
}

func (w *worker) run(ctx context.Context) error {
	w.stats.ignored = make(map[book.IgnoreReason]int64)

	for {
		ev, ok := w.queue.Receive()
		if !ok {
			break
		}

		snap, changed, reason := w.registry.Apply(ev)
		switch {
		case changed:
			w.stats.applied++
			w.stats.snapshots++
			w.rec.EventsApplied.Inc()
			w.rec.SnapshotsEmitted.Inc()
			before := len(w.spool.Chunks())
			if err := w.spool.Add(snap); err != nil {
				return fmt.Errorf("worker %d: %w", w.id, err)
			}
			w.rec.ChunksWritten.Add(float64(len(w.spool.Chunks()) - before))
		case reason != book.NotIgnored:
			w.stats.ignored[reason]++
			w.rec.Ignored(reason.String())
		default:
			w.stats.unchanged++
			w.rec.EventsUnchanged.Inc()
		}
	}

	// A cancelled run keeps only the chunks already on disk.
	if err := ctx.Err(); err != nil {
		return err
	}

	before := len(w.spool.Chunks())
	if err := w.spool.Close(); err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}
	w.rec.ChunksWritten.Add(float64(len(w.spool.Chunks()) - before))

	w.stats.chunks = int64(len(w.spool.Chunks()))
	w.stats.instruments = w.registry.Len()
	w.logger.Debug("worker finished",
		"worker", w.id,
		"instruments", w.stats.instruments,
		"snapshots", w.stats.snapshots,
		"chunks", w.stats.chunks,
	)
	return nil
}
