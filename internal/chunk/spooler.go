package chunk

import (
	"fmt"
	"sort"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// Spooler buffers snapshots and flushes them as sorted leaf chunks. Not safe
// for concurrent use; give each worker its own over a shared Store.
type Spooler struct {
	store    *Store
	capacity int
	buf      []model.Snapshot
	refs     []Ref
}

// NewSpooler creates a spooler holding at most capacity snapshots in memory.
func NewSpooler(store *Store, capacity int) *Spooler {
	if capacity < 1 {
		capacity = 1
	}
	return &Spooler{
		store:    store,
		capacity: capacity,
		buf:      make([]model.Snapshot, 0, capacity),
	}
}

// Add buffers s, flushing first if the buffer is full.
func (sp *Spooler) Add(s model.Snapshot) error {
	if len(sp.buf) >= sp.capacity {
		if err := sp.Flush(); err != nil {
			return err
		}
	}
	sp.buf = append(sp.buf, s)
	return nil
}

// Flush sorts and persists the buffered snapshots. An empty buffer writes nothing.
func (sp *Spooler) Flush() error {
	if len(sp.buf) == 0 {
		return nil
	}

	sort.SliceStable(sp.buf, func(i, j int) bool {
		return Less(sp.buf[i], sp.buf[j])
	})

	id := sp.store.NextID()
	ref, err := sp.store.Write(id, id, sp.buf)
	if err != nil {
		return fmt.Errorf("flush leaf chunk: %w", err)
	}
	sp.refs = append(sp.refs, ref)

	clear(sp.buf)
	sp.buf = sp.buf[:0]
	return nil
}

// Close flushes the remainder.
func (sp *Spooler) Close() error {
	return sp.Flush()
}

// Buffered returns how many snapshots are waiting in memory.
func (sp *Spooler) Buffered() int {
	return len(sp.buf)
}

// Chunks returns the leaf chunks written so far.
func (sp *Spooler) Chunks() []Ref {
	return sp.refs
}
