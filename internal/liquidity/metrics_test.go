package liquidity

import (
	"math"
	"testing"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCompute_TwoSidedBook(t *testing.T) {
	s := model.Snapshot{
		Timestamp:  2_500_000_000,
		Instrument: 42,
		Bids:       []model.Level{{Rank: 0, Price: 99, Size: 30}, {Rank: 1, Price: 98, Size: 10}},
		Asks:       []model.Level{{Rank: 0, Price: 101, Size: 10}},
	}
	rec := Compute(s, model.Counts{Updates: 4, Cancels: 1})

	if rec.Second != 2 || rec.Instrument != 42 {
		t.Errorf("key = %d@%d, want 42@2", rec.Instrument, rec.Second)
	}
	if !approx(rec.SpreadAbs.V, 2) || !approx(rec.SpreadRel.V, 0.02) {
		t.Errorf("spread = %v / %v, want 2 / 0.02", rec.SpreadAbs, rec.SpreadRel)
	}
	if !approx(rec.Imbalance.V, 0.5) {
		t.Errorf("Imbalance = %v, want 0.5", rec.Imbalance.V)
	}
	// (101*30 + 99*10) / 40
	if !approx(rec.Microprice.V, 100.5) {
		t.Errorf("Microprice = %v, want 100.5", rec.Microprice.V)
	}
	if rec.TotalBidVolume != 40 || rec.TotalAskVolume != 10 {
		t.Errorf("volumes = %d/%d, want 40/10", rec.TotalBidVolume, rec.TotalAskVolume)
	}
	if !approx(rec.AvgBidPrice.V, 98.75) || !approx(rec.AvgAskPrice.V, 101) {
		t.Errorf("avg prices = %v/%v, want 98.75/101", rec.AvgBidPrice.V, rec.AvgAskPrice.V)
	}
	if !approx(rec.DepthRatio.V, 0.25) {
		t.Errorf("DepthRatio = %v, want 0.25", rec.DepthRatio.V)
	}
	if !approx(rec.DepthImbalance.V, 0.6) || !approx(rec.Midprice.V, 100) {
		t.Errorf("DepthImbalance/Midprice = %v/%v", rec.DepthImbalance.V, rec.Midprice.V)
	}
	// (101*40 + 98.75*10) / 50
	if !approx(rec.DepthMicroprice.V, 100.55) {
		t.Errorf("DepthMicroprice = %v, want 100.55", rec.DepthMicroprice)
	}
	if !approx(rec.TopVolumeRatio.V, 0.8) {
		t.Errorf("TopVolumeRatio = %v, want 0.8", rec.TopVolumeRatio)
	}
	if rec.UpdateCount != 4 || rec.CancelCount != 1 {
		t.Errorf("counts = %d/%d, want 4/1", rec.UpdateCount, rec.CancelCount)
	}
}

func TestCompute_EdgeCases(t *testing.T) {
	t.Run("zero denominators", func(t *testing.T) {
		rec := Compute(model.Snapshot{
			Bids: []model.Level{{Price: -1, Size: 0}},
			Asks: []model.Level{{Price: 1, Size: 0}},
		}, model.Counts{})

		if rec.Imbalance.Valid {
			t.Errorf("Imbalance = %v, want null", rec.Imbalance.V)
		}
		if rec.SpreadRel.Valid {
			t.Errorf("SpreadRel = %v, want null", rec.SpreadRel.V)
		}
		if rec.DepthRatio.Valid {
			t.Errorf("DepthRatio = %v, want null", rec.DepthRatio.V)
		}
		if !rec.SpreadAbs.Valid || rec.SpreadAbs.V != 2 {
			t.Errorf("SpreadAbs = %v, want 2", rec.SpreadAbs)
		}
		if rec.TopVolumeRatio.Valid {
			t.Errorf("TopVolumeRatio = %v, want null", rec.TopVolumeRatio)
		}
		if !rec.DepthMicroprice.Valid || rec.DepthMicroprice.V != 0 {
			t.Errorf("DepthMicroprice = %v, want midprice 0", rec.DepthMicroprice)
		}
	})

	t.Run("one side zero size uses midprice", func(t *testing.T) {
		rec := Compute(model.Snapshot{
			Bids: []model.Level{{Price: 100, Size: 0}},
			Asks: []model.Level{{Price: 102, Size: 7}},
		}, model.Counts{})

		if !rec.Microprice.Valid || !approx(rec.Microprice.V, 101) {
			t.Errorf("Microprice = %v, want 101", rec.Microprice)
		}
		if !approx(rec.AvgBidPrice.V, 100) {
			t.Errorf("AvgBidPrice = %v, want best bid fallback 100", rec.AvgBidPrice)
		}
		if !approx(rec.DepthMicroprice.V, 100) {
			t.Errorf("DepthMicroprice = %v, want 100", rec.DepthMicroprice)
		}
	})

	t.Run("single side", func(t *testing.T) {
		rec := Compute(model.Snapshot{
			Asks: []model.Level{{Price: 100.2, Size: 5}},
		}, model.Counts{})

		if rec.BestBid.Valid || rec.BidSize.Valid || rec.SpreadAbs.Valid || rec.Imbalance.Valid || rec.Midprice.Valid {
			t.Errorf("bid-derived fields present: %+v", rec)
		}
		if !rec.Microprice.Valid || rec.Microprice.V != 100.2 {
			t.Errorf("Microprice = %v, want 100.2", rec.Microprice)
		}
		if rec.AvgBidPrice.Valid {
			t.Errorf("AvgBidPrice = %v, want null", rec.AvgBidPrice)
		}
		if rec.DepthRatio.Valid {
			t.Errorf("DepthRatio = %v, want null", rec.DepthRatio)
		}
		if rec.DepthMicroprice.Valid {
			t.Errorf("DepthMicroprice = %v, want null midprice", rec.DepthMicroprice)
		}
		if !approx(rec.TopVolumeRatio.V, 1) {
			t.Errorf("TopVolumeRatio = %v, want 1", rec.TopVolumeRatio)
		}
	})

	t.Run("empty book", func(t *testing.T) {
		rec := Compute(model.Snapshot{}, model.Counts{})
		if rec.Microprice.Valid || rec.BestAsk.Valid || rec.DepthImbalance.Valid || rec.DepthMicroprice.Valid || rec.TopVolumeRatio.Valid {
			t.Errorf("empty book produced values: %+v", rec)
		}
	})
}
