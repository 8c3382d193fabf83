package router

import (
	"context"
	"encoding/binary"
	"log/slog"

	"github.com/cespare/xxhash/v2"
)

// Partition maps an instrument onto one of n partitions. The mapping is
// stable, so every event of an instrument reaches the same worker.
func Partition(instrument int64, n int) int {
	if n <= 1 {
		return 0
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(instrument))
	return int(xxhash.Sum64(b[:]) % uint64(n))
}

// Router fans items out to per-partition queues by instrument.
type Router[T any] struct {
	cfg    RouterConfig
	logger *slog.Logger
	queues []*Queue[T]
}

// RouterStats contains per-partition queue statistics.
type RouterStats struct {
	Partitions []QueueStats
}

// NewRouter creates one bounded queue per partition.
func NewRouter[T any](cfg RouterConfig, logger *slog.Logger) *Router[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Partitions < 1 {
		cfg.Partitions = 1
	}

	queues := make([]*Queue[T], cfg.Partitions)
	for i := range queues {
		queues[i] = NewQueue[T](cfg.QueueCapacity)
	}

	logger.Debug("partition router created",
		"partitions", cfg.Partitions,
		"queue_capacity", cfg.QueueCapacity,
	)
	return &Router[T]{cfg: cfg, logger: logger, queues: queues}
}

// Route sends item to the queue owning instrument, blocking while it is full.
func (r *Router[T]) Route(ctx context.Context, instrument int64, item T) error {
	return r.queues[Partition(instrument, len(r.queues))].Send(ctx, item)
}

// Queue returns the queue of partition i.
func (r *Router[T]) Queue(i int) *Queue[T] {
	return r.queues[i]
}

// Partitions returns the number of partitions.
func (r *Router[T]) Partitions() int {
	return len(r.queues)
}

// Close closes every queue so workers drain and exit.
func (r *Router[T]) Close() {
	for _, q := range r.queues {
		q.Close()
	}
}

// Stats returns current queue statistics.
func (r *Router[T]) Stats() RouterStats {
	stats := RouterStats{Partitions: make([]QueueStats, len(r.queues))}
	for i, q := range r.queues {
		stats.Partitions[i] = q.Stats()
	}
	return stats
}
