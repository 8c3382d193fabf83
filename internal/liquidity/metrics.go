// Package liquidity reduces the ordered snapshot stream to one record per
// instrument per second, holding the book state at the close of the second.
package liquidity

import (
	"database/sql"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// Compute derives the metric record for the snapshot that closed a bucket.
// c is the bucket's update/cancel counts.
func Compute(s model.Snapshot, c model.Counts) model.MetricRecord {
	rec := model.MetricRecord{
		Instrument:  s.Instrument,
		Second:      s.Second(),
		UpdateCount: c.Updates,
		CancelCount: c.Cancels,
	}

	bid, hasBid := s.BestBid()
	ask, hasAsk := s.BestAsk()
	if hasBid {
		rec.BestBid = model.Some(bid.Price)
		rec.BidSize = model.Some(bid.Size)
	}
	if hasAsk {
		rec.BestAsk = model.Some(ask.Price)
		rec.AskSize = model.Some(ask.Size)
	}

	if hasBid && hasAsk {
		spread := ask.Price - bid.Price
		mid := (ask.Price + bid.Price) / 2
		rec.SpreadAbs = model.Some(spread)
		rec.Midprice = model.Some(mid)
		if mid != 0 {
			rec.SpreadRel = model.Some(spread / mid)
		}
		if denom := bid.Size + ask.Size; denom != 0 {
			rec.Imbalance = model.Some(float64(bid.Size-ask.Size) / float64(denom))
		}
	}
	rec.Microprice = microprice(bid, hasBid, ask, hasAsk)

	var bidNotional, askNotional float64
	for _, lv := range s.Bids {
		rec.TotalBidVolume += lv.Size
		bidNotional += lv.Price * float64(lv.Size)
	}
	for _, lv := range s.Asks {
		rec.TotalAskVolume += lv.Size
		askNotional += lv.Price * float64(lv.Size)
	}
	rec.AvgBidPrice = average(bidNotional, rec.TotalBidVolume, rec.BestBid)
	rec.AvgAskPrice = average(askNotional, rec.TotalAskVolume, rec.BestAsk)

	if rec.TotalBidVolume != 0 {
		rec.DepthRatio = model.Some(float64(rec.TotalAskVolume) / float64(rec.TotalBidVolume))
	}
	if total := rec.TotalBidVolume + rec.TotalAskVolume; total != 0 {
		rec.DepthImbalance = model.Some(float64(rec.TotalBidVolume-rec.TotalAskVolume) / float64(total))
	}
	rec.DepthMicroprice = depthMicroprice(rec)
	if total := rec.TotalBidVolume + rec.TotalAskVolume; total > 0 {
		rec.TopVolumeRatio = model.Some(float64(rec.BidSize.V+rec.AskSize.V) / float64(total))
	}

	return rec
}

// microprice weights each best price by the opposite side's size. A zero size
// on either side falls back to the midprice; a missing side falls back to the
// other side's price.
func microprice(bid model.Level, hasBid bool, ask model.Level, hasAsk bool) sql.Null[float64] {
	switch {
	case hasBid && hasAsk:
		if bid.Size > 0 && ask.Size > 0 {
			w := float64(bid.Size + ask.Size)
			return model.Some((ask.Price*float64(bid.Size) + bid.Price*float64(ask.Size)) / w)
		}
		return model.Some((ask.Price + bid.Price) / 2)
	case hasBid:
		return model.Some(bid.Price)
	case hasAsk:
		return model.Some(ask.Price)
	default:
		return sql.Null[float64]{}
	}
}

// depthMicroprice weights each side's average price by the opposite side's
// total volume. Falls back to the midprice when either average is missing.
func depthMicroprice(rec model.MetricRecord) sql.Null[float64] {
	total := rec.TotalBidVolume + rec.TotalAskVolume
	if !rec.AvgBidPrice.Valid || !rec.AvgAskPrice.Valid || total <= 0 {
		return rec.Midprice
	}
	return model.Some((rec.AvgAskPrice.V*float64(rec.TotalBidVolume) +
		rec.AvgBidPrice.V*float64(rec.TotalAskVolume)) / float64(total))
}

func average(notional float64, volume int64, best sql.Null[float64]) sql.Null[float64] {
	if volume > 0 {
		return model.Some(notional / float64(volume))
	}
	return best
}
