package counts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

const keyPrefix = "cnt/"

// Pebble is a disk-backed Store for inputs whose bucket set does not fit in
// memory. Adds are buffered and merged into the database in batches.
type Pebble struct {
	db         *pebble.DB
	logger     *slog.Logger
	flushEvery int

	mu      sync.Mutex
	pending map[model.BucketKey]model.Counts
	flushes int64
}

// OpenPebble opens or creates a counts database in dir.
func OpenPebble(dir string, flushEvery int, logger *slog.Logger) (*Pebble, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, errors.New("pebble counts store requires a directory")
	}
	if flushEvery < 1 {
		flushEvery = 100_000
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open counts db: %w", err)
	}
	return &Pebble{
		db:         db,
		logger:     logger,
		flushEvery: flushEvery,
		pending:    make(map[model.BucketKey]model.Counts),
	}, nil
}

func (p *Pebble) Add(key model.BucketKey, c model.Counts) error {
	p.mu.Lock()
	p.pending[key] = p.pending[key].Add(c)
	full := len(p.pending) >= p.flushEvery
	p.mu.Unlock()

	if full {
		return p.Flush()
	}
	return nil
}

func (p *Pebble) Get(key model.BucketKey) (model.Counts, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending := p.pending[key]

	stored, err := p.load(key)
	if err != nil {
		return model.Counts{}, err
	}
	return stored.Add(pending), nil
}

func (p *Pebble) load(key model.BucketKey) (model.Counts, error) {
	val, closer, err := p.db.Get(encodeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return model.Counts{}, nil
	}
	if err != nil {
		return model.Counts{}, fmt.Errorf("get counts: %w", err)
	}
	defer closer.Close()
	return decodeValue(val)
}

// Flush merges buffered buckets into the database.
func (p *Pebble) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return nil
	}

	b := p.db.NewBatch()
	defer b.Close()

	for key, c := range p.pending {
		stored, err := p.load(key)
		if err != nil {
			return err
		}
		if err := b.Set(encodeKey(key), encodeValue(stored.Add(c)), nil); err != nil {
			return fmt.Errorf("batch counts: %w", err)
		}
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("commit counts: %w", err)
	}

	p.flushes++
	p.logger.Debug("flushed counts", "buckets", len(p.pending), "flushes", p.flushes)
	clear(p.pending)
	return nil
}

// Each visits every stored bucket in (instrument, second) order.
func (p *Pebble) Each(fn func(model.BucketKey, model.Counts) error) error {
	if err := p.Flush(); err != nil {
		return err
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte("cnt0"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key, err := decodeKey(iter.Key())
		if err != nil {
			return err
		}
		c, err := decodeValue(iter.Value())
		if err != nil {
			return err
		}
		if err := fn(key, c); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Close flushes and closes the database.
func (p *Pebble) Close() error {
	if err := p.Flush(); err != nil {
		p.db.Close()
		return err
	}
	return p.db.Close()
}

// encodeKey is order-preserving for signed values: the sign bit is flipped so
// negative instruments and seconds sort first.
func encodeKey(k model.BucketKey) []byte {
	b := make([]byte, 0, len(keyPrefix)+16)
	b = append(b, keyPrefix...)
	b = binary.BigEndian.AppendUint64(b, uint64(k.Instrument)^(1<<63))
	b = binary.BigEndian.AppendUint64(b, uint64(k.Second)^(1<<63))
	return b
}

func decodeKey(b []byte) (model.BucketKey, error) {
	if len(b) != len(keyPrefix)+16 {
		return model.BucketKey{}, fmt.Errorf("bad counts key length %d", len(b))
	}
	b = b[len(keyPrefix):]
	return model.BucketKey{
		Instrument: int64(binary.BigEndian.Uint64(b[:8]) ^ (1 << 63)),
		Second:     int64(binary.BigEndian.Uint64(b[8:]) ^ (1 << 63)),
	}, nil
}

func encodeValue(c model.Counts) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], uint64(c.Updates))
	binary.BigEndian.PutUint64(b[8:], uint64(c.Cancels))
	return b
}

func decodeValue(b []byte) (model.Counts, error) {
	if len(b) != 16 {
		return model.Counts{}, fmt.Errorf("bad counts value length %d", len(b))
	}
	return model.Counts{
		Updates: int64(binary.BigEndian.Uint64(b[:8])),
		Cancels: int64(binary.BigEndian.Uint64(b[8:])),
	}, nil
}
