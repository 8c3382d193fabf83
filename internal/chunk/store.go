package chunk

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/atomicfile"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

const (
	filePrefix = "span-"
	fileSuffix = ".chunk"
)

// Ref identifies one persisted chunk.
type Ref struct {
	Lo, Hi uint64 // Leaf id span covered by the chunk, inclusive
	Path   string
}

// Contains reports whether o's span lies within r's span.
func (r Ref) Contains(o Ref) bool {
	return r.Lo <= o.Lo && o.Hi <= r.Hi
}

// Name is the file name for a span.
func Name(lo, hi uint64) string {
	return fmt.Sprintf("%s%d-%d%s", filePrefix, lo, hi, fileSuffix)
}

// parseName extracts the span from a chunk file name.
func parseName(name string) (lo, hi uint64, ok bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, 0, false
	}
	span := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	if _, err := fmt.Sscanf(span, "%d-%d", &lo, &hi); err != nil || lo > hi {
		return 0, 0, false
	}
	if Name(lo, hi) != name {
		return 0, 0, false
	}
	return lo, hi, true
}

// StoreStats tracks chunk I/O.
type StoreStats struct {
	ChunksWritten  int64
	RecordsWritten int64
	ChunksRemoved  int64
	StaleRemoved   int64
}

// Store is a directory of chunk files. Safe for concurrent use.
type Store struct {
	dir    string
	logger *slog.Logger
	next   atomic.Uint64

	mu    sync.Mutex
	stats StoreStats
}

// OpenStore opens or creates a chunk directory. Leaf ids continue after the
// highest span already present.
func OpenStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}

	s := &Store{dir: dir, logger: logger}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read chunk dir: %w", err)
	}
	var maxHi uint64
	for _, e := range entries {
		if _, hi, ok := parseName(e.Name()); ok && hi > maxHi {
			maxHi = hi
		}
	}
	s.next.Store(maxHi)

	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// NextID allocates a fresh leaf id.
func (s *Store) NextID() uint64 {
	return s.next.Add(1)
}

// Stats returns current counters.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Writer streams records into a chunk that becomes visible on Commit.
type Writer struct {
	store *Store
	ref   Ref
	file  *atomicfile.File
	enc   *Encoder
}

// Create starts a chunk covering lo..hi.
func (s *Store) Create(lo, hi uint64) (*Writer, error) {
	ref := Ref{Lo: lo, Hi: hi, Path: filepath.Join(s.dir, Name(lo, hi))}
	f, err := atomicfile.Create(ref.Path)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncoder(f)
	if err != nil {
		f.Abort()
		return nil, err
	}
	return &Writer{store: s, ref: ref, file: f, enc: enc}, nil
}

// Write appends one snapshot.
func (w *Writer) Write(snap model.Snapshot) error {
	return w.enc.Encode(snap)
}

// Commit publishes the chunk.
func (w *Writer) Commit() (Ref, error) {
	if err := w.file.Commit(); err != nil {
		return Ref{}, fmt.Errorf("commit chunk %s: %w", filepath.Base(w.ref.Path), err)
	}
	w.store.mu.Lock()
	w.store.stats.ChunksWritten++
	w.store.stats.RecordsWritten += int64(w.enc.Records())
	w.store.mu.Unlock()
	return w.ref, nil
}

// Abort discards the pending chunk.
func (w *Writer) Abort() {
	w.file.Abort()
}

// Write persists snaps, already in order, as the chunk lo..hi.
func (s *Store) Write(lo, hi uint64, snaps []model.Snapshot) (Ref, error) {
	w, err := s.Create(lo, hi)
	if err != nil {
		return Ref{}, err
	}
	for _, snap := range snaps {
		if err := w.Write(snap); err != nil {
			w.Abort()
			return Ref{}, err
		}
	}
	return w.Commit()
}

// List returns the live chunks ordered by span. Leftover temporary files are
// deleted, as are chunks whose span is covered by another chunk: those are
// inputs of a merge whose output was already published.
func (s *Store) List() ([]Ref, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read chunk dir: %w", err)
	}

	var refs []Ref
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if atomicfile.IsTemp(name) {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("remove stale %s: %w", name, err)
			}
			s.mu.Lock()
			s.stats.StaleRemoved++
			s.mu.Unlock()
			s.logger.Debug("removed stale chunk temp", "file", name)
			continue
		}
		lo, hi, ok := parseName(name)
		if !ok {
			continue
		}
		refs = append(refs, Ref{Lo: lo, Hi: hi, Path: filepath.Join(s.dir, name)})
	}

	// Widest span first among equal starts so containers precede contents.
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Lo != refs[j].Lo {
			return refs[i].Lo < refs[j].Lo
		}
		return refs[i].Hi > refs[j].Hi
	})

	live := refs[:0]
	for _, r := range refs {
		if n := len(live); n > 0 && live[n-1].Contains(r) {
			if err := s.Remove(r); err != nil {
				return nil, err
			}
			s.logger.Debug("removed merged chunk input", "chunk", filepath.Base(r.Path))
			continue
		}
		live = append(live, r)
	}
	return live, nil
}

// Remove deletes a chunk. Removing a missing chunk is not an error.
func (s *Store) Remove(ref Ref) error {
	if err := os.Remove(ref.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove chunk %s: %w", filepath.Base(ref.Path), err)
	}
	s.mu.Lock()
	s.stats.ChunksRemoved++
	s.mu.Unlock()
	return nil
}

// Reader iterates one chunk file.
type Reader struct {
	f   *os.File
	dec *Decoder
}

// Open opens a chunk for sequential reading.
func (s *Store) Open(ref Ref) (*Reader, error) {
	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("open chunk: %w", err)
	}
	dec, err := NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("chunk %s: %w", filepath.Base(ref.Path), err)
	}
	return &Reader{f: f, dec: dec}, nil
}

// Next returns the next snapshot or io.EOF.
func (r *Reader) Next() (model.Snapshot, error) {
	return r.dec.Next()
}

// Close releases the file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Each calls fn for every snapshot in ref, in stored order.
func (s *Store) Each(ref Ref, fn func(model.Snapshot) error) error {
	r, err := s.Open(ref)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		snap, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chunk %s: %w", filepath.Base(ref.Path), err)
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}
