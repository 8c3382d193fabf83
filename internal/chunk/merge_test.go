package chunk

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// orderedSequence builds n snapshots already in global order, with timestamp
// ties broken by instrument and seq.
func orderedSequence(rng *rand.Rand, n int) []model.Snapshot {
	out := make([]model.Snapshot, n)
	ts := int64(1_000_000_000)
	for i := range out {
		if rng.Intn(3) == 0 {
			ts += int64(rng.Intn(1_000_000))
		}
		out[i] = model.Snapshot{
			Timestamp:  ts,
			Instrument: int64(i % 7),
			Seq:        uint64(i + 1),
			Action:     model.Some(int64(model.ActionChange)),
			Bids:       []model.Level{{Rank: 0, Price: float64(i), Size: int64(i)}},
		}
	}
	// Rebuild instrument/seq so ties are strictly increasing in the key.
	for i := 1; i < n; i++ {
		if out[i].Timestamp == out[i-1].Timestamp && !Less(out[i-1], out[i]) {
			out[i].Instrument = out[i-1].Instrument
			out[i].Seq = out[i-1].Seq + 1
		}
	}
	return out
}

func readAll(t *testing.T, s *Store, ref Ref) []model.Snapshot {
	t.Helper()
	var out []model.Snapshot
	if err := s.Each(ref, func(snap model.Snapshot) error {
		out = append(out, snap)
		return nil
	}); err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	return out
}

func TestMergeAll_ReproducesOrder(t *testing.T) {
	for _, tc := range []struct {
		name     string
		n        int
		batch    int
		parallel int
	}{
		{"small batches", 500, 2, 3},
		{"wide batch", 800, 50, 1},
		{"three way", 1000, 3, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(tc.n)))
			want := orderedSequence(rng, tc.n)

			shuffled := append([]model.Snapshot(nil), want...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

			store, err := OpenStore(t.TempDir(), nil)
			if err != nil {
				t.Fatalf("OpenStore failed: %v", err)
			}

			// Arbitrary chunk sizes via several spoolers of different capacity.
			spoolers := []*Spooler{NewSpooler(store, 7), NewSpooler(store, 31), NewSpooler(store, 1)}
			for i, s := range shuffled {
				if err := spoolers[i%len(spoolers)].Add(s); err != nil {
					t.Fatalf("Add failed: %v", err)
				}
			}
			for _, sp := range spoolers {
				if err := sp.Close(); err != nil {
					t.Fatalf("Close failed: %v", err)
				}
			}

			m := NewMerger(store, MergeConfig{Batch: tc.batch, Parallelism: tc.parallel}, nil)
			final, stats, ok, err := m.MergeAll(context.Background())
			if err != nil || !ok {
				t.Fatalf("MergeAll() = %v, %v", ok, err)
			}
			if stats.Rounds == 0 || stats.Batches == 0 {
				t.Errorf("stats = %+v, want rounds and batches", stats)
			}

			got := readAll(t, store, final)
			if len(got) != len(want) {
				t.Fatalf("len(got) = %d, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i].Timestamp != want[i].Timestamp ||
					got[i].Instrument != want[i].Instrument ||
					got[i].Seq != want[i].Seq {
					t.Fatalf("record %d = (%d,%d,%d), want (%d,%d,%d)", i,
						got[i].Timestamp, got[i].Instrument, got[i].Seq,
						want[i].Timestamp, want[i].Instrument, want[i].Seq)
				}
			}

			refs, _ := store.List()
			if len(refs) != 1 {
				t.Errorf("live chunks = %d, want 1", len(refs))
			}
		})
	}
}

func TestMergeAll_Empty(t *testing.T) {
	store, _ := OpenStore(t.TempDir(), nil)
	_, _, ok, err := NewMerger(store, DefaultMergeConfig(), nil).MergeAll(context.Background())
	if err != nil || ok {
		t.Errorf("MergeAll() = %v, %v; want false, nil", ok, err)
	}
}

func TestDefaultMergeConfig(t *testing.T) {
	cfg := DefaultMergeConfig()
	if cfg.Batch != 20 || cfg.Parallelism != 4 {
		t.Errorf("DefaultMergeConfig() = %+v, want batch 20 parallelism 4", cfg)
	}
}

func TestMergeBatch_StableOnEqualKeys(t *testing.T) {
	store, _ := OpenStore(t.TempDir(), nil)
	key := model.Snapshot{Timestamp: 5, Instrument: 1, Seq: 1}

	first := key
	first.Bids = []model.Level{{Price: 1}}
	second := key
	second.Bids = []model.Level{{Price: 2}}

	a, _ := store.Write(1, 1, []model.Snapshot{first})
	b, _ := store.Write(2, 2, []model.Snapshot{second})

	m := NewMerger(store, MergeConfig{Batch: 2, Parallelism: 1}, nil)
	if err := m.MergeBatch(context.Background(), []Ref{a, b}); err != nil {
		t.Fatalf("MergeBatch failed: %v", err)
	}

	refs, _ := store.List()
	got := readAll(t, store, refs[0])
	if got[0].Bids[0].Price != 1 || got[1].Bids[0].Price != 2 {
		t.Errorf("equal keys reordered: %+v", got)
	}
}

func TestMergeAll_ResumesAfterInterruptedBatch(t *testing.T) {
	dir := t.TempDir()
	store, _ := OpenStore(dir, nil)

	var want []model.Snapshot
	for i := 1; i <= 4; i++ {
		s := model.Snapshot{Timestamp: int64(i), Instrument: 1, Seq: uint64(i)}
		want = append(want, s)
		if _, err := store.Write(uint64(i), uint64(i), []model.Snapshot{s}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	// A batch over 1..2 published its output but crashed before removing inputs.
	if _, err := store.Write(1, 2, want[:2]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	resumed, _ := OpenStore(dir, nil)
	final, _, ok, err := NewMerger(resumed, MergeConfig{Batch: 2, Parallelism: 2}, nil).MergeAll(context.Background())
	if err != nil || !ok {
		t.Fatalf("MergeAll() = %v, %v", ok, err)
	}

	got := readAll(t, resumed, final)
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d (duplicates or loss)", len(got), len(want))
	}
	for i := range want {
		if got[i].Seq != want[i].Seq {
			t.Errorf("got[%d].Seq = %d, want %d", i, got[i].Seq, want[i].Seq)
		}
	}
}

func TestMergeAll_Cancelled(t *testing.T) {
	store, _ := OpenStore(t.TempDir(), nil)
	store.Write(1, 1, []model.Snapshot{{Timestamp: 1}})
	store.Write(2, 2, []model.Snapshot{{Timestamp: 2}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := NewMerger(store, DefaultMergeConfig(), nil).MergeAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if refs, _ := store.List(); len(refs) != 2 {
		t.Errorf("live chunks = %d, want 2 untouched", len(refs))
	}
}

func TestSpooler_FlushesAtCapacity(t *testing.T) {
	store, _ := OpenStore(t.TempDir(), nil)
	sp := NewSpooler(store, 3)

	for i := 5; i > 0; i-- {
		if err := sp.Add(model.Snapshot{Timestamp: int64(i)}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if len(sp.Chunks()) != 1 || sp.Buffered() != 2 {
		t.Errorf("chunks=%d buffered=%d, want 1 and 2", len(sp.Chunks()), sp.Buffered())
	}
	if err := sp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(sp.Chunks()) != 2 {
		t.Errorf("chunks = %d, want 2", len(sp.Chunks()))
	}

	got := readAll(t, store, sp.Chunks()[0])
	for i := 1; i < len(got); i++ {
		if Less(got[i], got[i-1]) {
			t.Errorf("leaf chunk not sorted: %+v", got)
		}
	}
}
