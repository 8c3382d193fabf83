package liquidity

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/counts"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// EmitFunc receives each finished record.
type EmitFunc func(model.MetricRecord) error

// Aggregator consumes snapshots in global (timestamp, instrument) order and
// emits a record whenever an instrument moves into a new second.
type Aggregator struct {
	counts counts.Store
	emit   EmitFunc
	logger *slog.Logger

	open    map[int64]model.Snapshot
	records int64
}

// NewAggregator creates an aggregator joining bucket counts from store.
func NewAggregator(store counts.Store, emit EmitFunc, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		counts: store,
		emit:   emit,
		logger: logger,
		open:   make(map[int64]model.Snapshot),
	}
}

// Add observes the next snapshot of the stream.
func (a *Aggregator) Add(s model.Snapshot) error {
	if prev, ok := a.open[s.Instrument]; ok && prev.Second() != s.Second() {
		if err := a.closeBucket(prev); err != nil {
			return err
		}
	}
	a.open[s.Instrument] = s
	return nil
}

// Close emits every still-open bucket, ordered by instrument.
func (a *Aggregator) Close() error {
	instruments := make([]int64, 0, len(a.open))
	for id := range a.open {
		instruments = append(instruments, id)
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i] < instruments[j] })

	for _, id := range instruments {
		if err := a.closeBucket(a.open[id]); err != nil {
			return err
		}
		delete(a.open, id)
	}

	a.logger.Debug("liquidity aggregator closed", "records", a.records)
	return nil
}

// Records returns how many records have been emitted.
func (a *Aggregator) Records() int64 {
	return a.records
}

func (a *Aggregator) closeBucket(last model.Snapshot) error {
	key := model.BucketKey{Instrument: last.Instrument, Second: last.Second()}
	c, err := a.counts.Get(key)
	if err != nil {
		return fmt.Errorf("counts for %d@%d: %w", key.Instrument, key.Second, err)
	}
	if err := a.emit(Compute(last, c)); err != nil {
		return fmt.Errorf("emit metric record: %w", err)
	}
	a.records++
	return nil
}
