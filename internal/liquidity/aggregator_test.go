package liquidity

import (
	"errors"
	"testing"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/book"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/counts"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

type collector struct {
	records []model.MetricRecord
}

func (c *collector) emit(r model.MetricRecord) error {
	c.records = append(c.records, r)
	return nil
}

func snap(instrument, ts int64, bid float64) model.Snapshot {
	return model.Snapshot{
		Timestamp:  ts,
		Instrument: instrument,
		Bids:       []model.Level{{Price: bid, Size: 1}},
	}
}

func TestAggregator_LastSnapshotPerSecond(t *testing.T) {
	var out collector
	store := counts.NewMemory()
	store.Add(model.BucketKey{Instrument: 1, Second: 1}, model.Counts{Updates: 3})

	a := NewAggregator(store, out.emit, nil)
	stream := []model.Snapshot{
		snap(1, 1_100_000_000, 10),
		snap(2, 1_200_000_000, 20),
		snap(1, 1_900_000_000, 11),
		snap(1, 2_000_000_000, 12),
		snap(2, 3_500_000_000, 21),
	}
	for _, s := range stream {
		if err := a.Add(s); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := []struct {
		instrument, second int64
		bid                float64
	}{
		{1, 1, 11},
		{2, 1, 20},
		{1, 2, 12},
		{2, 3, 21},
	}
	if len(out.records) != len(want) {
		t.Fatalf("len(records) = %d, want %d", len(out.records), len(want))
	}
	for i, w := range want {
		r := out.records[i]
		if r.Instrument != w.instrument || r.Second != w.second || r.BestBid.V != w.bid {
			t.Errorf("records[%d] = %d@%d bid %v, want %d@%d bid %v",
				i, r.Instrument, r.Second, r.BestBid.V, w.instrument, w.second, w.bid)
		}
	}
	if out.records[0].UpdateCount != 3 || out.records[1].UpdateCount != 0 {
		t.Errorf("left join counts = %d/%d, want 3/0", out.records[0].UpdateCount, out.records[1].UpdateCount)
	}
	if a.Records() != 4 {
		t.Errorf("Records() = %d, want 4", a.Records())
	}
}

func TestAggregator_EmitError(t *testing.T) {
	boom := errors.New("sink down")
	a := NewAggregator(counts.NewMemory(), func(model.MetricRecord) error { return boom }, nil)
	a.Add(snap(1, 1, 1))
	if err := a.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() = %v, want %v", err, boom)
	}
}

func TestScenario_DeleteLeavesOneSidedBook(t *testing.T) {
	events := []model.RawEvent{
		{
			Action: model.Some(int64(model.ActionNew)), Side: model.Some(int64(model.SideBid)),
			Level: model.Some(int64(0)), Instrument: model.Some(int64(7)),
			Price: model.Some(100.0), Size: model.Some(int64(10)), Timestamp: model.Some(int64(1_000_000_000)),
		},
		{
			Action: model.Some(int64(model.ActionNew)), Side: model.Some(int64(model.SideAsk)),
			Level: model.Some(int64(0)), Instrument: model.Some(int64(7)),
			Price: model.Some(100.2), Size: model.Some(int64(5)), Timestamp: model.Some(int64(1_000_000_500)),
		},
		{
			Action: model.Some(int64(model.ActionDelete)), Side: model.Some(int64(model.SideBid)),
			Level: model.Some(int64(0)), Instrument: model.Some(int64(7)),
			Timestamp: model.Some(int64(1_000_900_000)),
		},
	}

	reg := book.NewRegistry(10, 5)
	store := counts.NewMemory()
	var out collector
	agg := NewAggregator(store, out.emit, nil)

	var changes []bool
	for _, ev := range events {
		if key, c, ok := counts.Classify(ev); ok {
			store.Add(key, c)
		}
		s, changed, _ := reg.Apply(ev)
		changes = append(changes, changed)
		if changed {
			agg.Add(s)
		}
	}
	agg.Close()

	if !changes[0] || !changes[1] {
		t.Errorf("changes = %v, want first two true", changes)
	}
	if len(out.records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(out.records))
	}

	rec := out.records[0]
	if rec.Second != 1 {
		t.Errorf("Second = %d, want 1", rec.Second)
	}
	if rec.BestBid.Valid {
		t.Errorf("BestBid = %v, want null", rec.BestBid.V)
	}
	if !rec.BestAsk.Valid || rec.BestAsk.V != 100.2 || rec.AskSize.V != 5 {
		t.Errorf("best ask = %v x %v, want 100.2 x 5", rec.BestAsk, rec.AskSize)
	}
	if rec.SpreadAbs.Valid || rec.Imbalance.Valid {
		t.Errorf("SpreadAbs/Imbalance = %v/%v, want null", rec.SpreadAbs, rec.Imbalance)
	}
	if rec.UpdateCount != 2 || rec.CancelCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", rec.UpdateCount, rec.CancelCount)
	}
}
