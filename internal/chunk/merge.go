package chunk

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// MergeConfig bounds the merge.
type MergeConfig struct {
	// Batch is how many chunks one merge opens at once (k of the k-way merge).
	Batch int

	// Parallelism is how many batches of a round may run concurrently.
	Parallelism int
}

// DefaultMergeConfig returns default merge settings.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{Batch: 20, Parallelism: 4}
}

// MergeStats summarizes a MergeAll call.
type MergeStats struct {
	Rounds  int
	Batches int64
	Records int64
}

// Merger reduces a Store to a single ordered chunk.
type Merger struct {
	store  *Store
	cfg    MergeConfig
	logger *slog.Logger

	batches atomic.Int64
	records atomic.Int64
}

// NewMerger creates a merger over store.
func NewMerger(store *Store, cfg MergeConfig, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Batch < 2 {
		cfg.Batch = 2
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Merger{store: store, cfg: cfg, logger: logger}
}

// MergeAll merges every live chunk into one. ok is false when the store is
// empty. Running it again over a partially merged directory resumes the work.
func (m *Merger) MergeAll(ctx context.Context) (final Ref, stats MergeStats, ok bool, err error) {
	for {
		refs, err := m.store.List()
		if err != nil {
			return Ref{}, m.stats(stats), false, err
		}
		switch len(refs) {
		case 0:
			return Ref{}, m.stats(stats), false, nil
		case 1:
			return refs[0], m.stats(stats), true, nil
		}

		if err := ctx.Err(); err != nil {
			return Ref{}, m.stats(stats), false, err
		}

		stats.Rounds++
		m.logger.Info("merge round",
			"round", stats.Rounds,
			"chunks", len(refs),
			"batch", m.cfg.Batch,
		)
		if err := m.round(ctx, refs); err != nil {
			return Ref{}, m.stats(stats), false, err
		}
	}
}

func (m *Merger) stats(s MergeStats) MergeStats {
	s.Batches = m.batches.Load()
	s.Records = m.records.Load()
	return s
}

func (m *Merger) round(ctx context.Context, refs []Ref) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Parallelism)

	for start := 0; start < len(refs); start += m.cfg.Batch {
		end := min(start+m.cfg.Batch, len(refs))
		batch := refs[start:end]
		if len(batch) == 1 {
			continue
		}
		g.Go(func() error {
			return m.MergeBatch(gctx, batch)
		})
	}
	return g.Wait()
}

// MergeBatch merges consecutive chunks into one chunk spanning them, then
// removes the inputs. Equal keys keep input order.
func (m *Merger) MergeBatch(ctx context.Context, batch []Ref) error {
	lo, hi := batch[0].Lo, batch[len(batch)-1].Hi
	out, err := m.store.Create(lo, hi)
	if err != nil {
		return err
	}

	n, err := m.mergeInto(ctx, batch, out)
	if err != nil {
		out.Abort()
		return fmt.Errorf("merge %s: %w", Name(lo, hi), err)
	}
	if _, err := out.Commit(); err != nil {
		return err
	}

	for _, ref := range batch {
		if err := m.store.Remove(ref); err != nil {
			return err
		}
	}

	m.batches.Add(1)
	m.records.Add(n)
	m.logger.Debug("merged batch",
		"output", Name(lo, hi),
		"inputs", len(batch),
		"records", n,
	)
	return nil
}

func (m *Merger) mergeInto(ctx context.Context, batch []Ref, out *Writer) (int64, error) {
	readers := make([]*Reader, 0, len(batch))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	h := make(mergeHeap, 0, len(batch))
	for i, ref := range batch {
		r, err := m.store.Open(ref)
		if err != nil {
			return 0, err
		}
		readers = append(readers, r)

		snap, err := r.Next()
		if errors.Is(err, io.EOF) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", filepath.Base(ref.Path), err)
		}
		h = append(h, cursor{snap: snap, src: i})
	}
	heap.Init(&h)

	var n int64
	for h.Len() > 0 {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}

		top := h[0]
		if err := out.Write(top.snap); err != nil {
			return n, err
		}
		n++

		snap, err := readers[top.src].Next()
		switch {
		case errors.Is(err, io.EOF):
			heap.Pop(&h)
		case err != nil:
			return n, fmt.Errorf("read %s: %w", filepath.Base(batch[top.src].Path), err)
		default:
			h[0].snap = snap
			heap.Fix(&h, 0)
		}
	}
	return n, nil
}

// cursor is the head record of one merge input.
type cursor struct {
	snap model.Snapshot
	src  int
}

type mergeHeap []cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if Less(h[i].snap, h[j].snap) {
		return true
	}
	if Less(h[j].snap, h[i].snap) {
		return false
	}
	return h[i].src < h[j].src
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(cursor)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
