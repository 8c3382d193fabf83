package router

import (
	"context"
	"testing"
)

func TestPartition_StableAndInRange(t *testing.T) {
	for _, n := range []int{1, 2, 3, 8} {
		for id := int64(-50); id < 50; id++ {
			p := Partition(id, n)
			if p < 0 || p >= n {
				t.Fatalf("Partition(%d, %d) = %d, out of range", id, n, p)
			}
			if again := Partition(id, n); again != p {
				t.Fatalf("Partition(%d, %d) not stable: %d then %d", id, n, p, again)
			}
		}
	}
	if Partition(12345, 0) != 0 {
		t.Error("Partition with n=0 should return 0")
	}
}

func TestPartition_Spreads(t *testing.T) {
	const n = 4
	hits := make([]int, n)
	for id := int64(5_000_000); id < 5_001_000; id++ {
		hits[Partition(id, n)]++
	}
	for i, h := range hits {
		if h < 150 {
			t.Errorf("partition %d got %d of 1000 instruments, want a spread", i, h)
		}
	}
}

func TestRouter_RoutesByInstrument(t *testing.T) {
	r := NewRouter[int64](RouterConfig{Partitions: 3, QueueCapacity: 16}, nil)
	ctx := context.Background()

	ids := []int64{5578481, 5578482, 5578483, 5578481, 7}
	for _, id := range ids {
		if err := r.Route(ctx, id, id); err != nil {
			t.Fatalf("Route(%d) = %v", id, err)
		}
	}
	r.Close()

	total := 0
	for p := 0; p < r.Partitions(); p++ {
		for _, id := range r.Queue(p).DrainTo(0) {
			if Partition(id, 3) != p {
				t.Errorf("instrument %d in partition %d, want %d", id, p, Partition(id, 3))
			}
			total++
		}
	}
	if total != len(ids) {
		t.Errorf("routed %d items, want %d", total, len(ids))
	}

	stats := r.Stats()
	if len(stats.Partitions) != 3 {
		t.Errorf("len(Stats().Partitions) = %d, want 3", len(stats.Partitions))
	}
}
