// Package counts tracks how many update and cancel events each instrument
// received in each whole second. The liquidity aggregator joins these counts
// onto its per-second records.
package counts

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// Store accumulates counts per (instrument, second).
type Store interface {
	// Add merges c into the bucket at key.
	Add(key model.BucketKey, c model.Counts) error

	// Get returns the bucket's counts, zero when absent.
	Get(key model.BucketKey) (model.Counts, error)

	// Flush persists anything buffered.
	Flush() error

	Close() error
}

// Classify derives the bucket and counts contributed by one raw event. Events
// without timestamp, instrument or action contribute nothing.
func Classify(ev model.RawEvent) (model.BucketKey, model.Counts, bool) {
	if !ev.Timestamp.Valid || !ev.Instrument.Valid || !ev.Action.Valid {
		return model.BucketKey{}, model.Counts{}, false
	}

	var c model.Counts
	switch a := model.Action(ev.Action.V); {
	case a.IsUpsert():
		c.Updates = 1
	case a.IsDelete():
		c.Cancels = 1
	default:
		return model.BucketKey{}, model.Counts{}, false
	}

	key := model.BucketKey{
		Instrument: ev.Instrument.V,
		Second:     model.SecondOf(ev.Timestamp.V),
	}
	return key, c, true
}

// Config selects a Store implementation.
type Config struct {
	Backend    string `yaml:"backend"`     // memory or pebble
	Dir        string `yaml:"dir"`         // pebble directory
	FlushEvery int    `yaml:"flush_every"` // buffered buckets before a pebble write
}

// Open builds the configured store.
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "pebble":
		return OpenPebble(cfg.Dir, cfg.FlushEvery, logger)
	default:
		return nil, fmt.Errorf("unknown counts backend %q", cfg.Backend)
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	buckets map[model.BucketKey]model.Counts
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[model.BucketKey]model.Counts)}
}

func (m *Memory) Add(key model.BucketKey, c model.Counts) error {
	m.mu.Lock()
	m.buckets[key] = m.buckets[key].Add(c)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(key model.BucketKey) (model.Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buckets[key], nil
}

// Len returns the number of buckets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}

func (m *Memory) Flush() error { return nil }

func (m *Memory) Close() error { return nil }
