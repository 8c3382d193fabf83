package book

import (
	"sort"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// IgnoreReason explains why an event did not reach a ladder.
type IgnoreReason int

const (
	NotIgnored IgnoreReason = iota
	MissingInstrument
	InvalidSide
	OutOfRangeLevel
	UnsupportedAction
	MissingPriceSize
)

// IgnoreReasons lists every reason an event can be ignored, for reporting.
var IgnoreReasons = []IgnoreReason{
	MissingInstrument,
	InvalidSide,
	OutOfRangeLevel,
	UnsupportedAction,
	MissingPriceSize,
}

func (r IgnoreReason) String() string {
	switch r {
	case NotIgnored:
		return "none"
	case MissingInstrument:
		return "missing_instrument"
	case InvalidSide:
		return "invalid_side"
	case OutOfRangeLevel:
		return "out_of_range_level"
	case UnsupportedAction:
		return "unsupported_action"
	case MissingPriceSize:
		return "missing_price_size"
	default:
		return "unknown"
	}
}

type quote struct {
	price float64
	size  int64
}

// Ladder is the order book state of one instrument.
type Ladder struct {
	maxDepth int
	bids     map[int]quote
	asks     map[int]quote
	ts       int64
	seen     bool
}

// NewLadder creates an empty ladder accepting levels 0..maxDepth.
func NewLadder(maxDepth int) *Ladder {
	return &Ladder{
		maxDepth: maxDepth,
		bids:     make(map[int]quote),
		asks:     make(map[int]quote),
	}
}

// Apply applies one event. It reports whether the visible book changed, or why
// the event was ignored.
func (l *Ladder) Apply(ev model.RawEvent) (changed bool, reason IgnoreReason) {
	if !ev.Side.Valid {
		return false, InvalidSide
	}
	var levels map[int]quote
	switch model.Side(ev.Side.V) {
	case model.SideBid:
		levels = l.bids
	case model.SideAsk:
		levels = l.asks
	default:
		return false, InvalidSide
	}

	if !ev.Level.Valid || ev.Level.V < 0 || ev.Level.V > int64(l.maxDepth) {
		return false, OutOfRangeLevel
	}
	rank := int(ev.Level.V)

	if ev.Timestamp.Valid {
		l.ts = ev.Timestamp.V
		l.seen = true
	}

	if !ev.Action.Valid {
		return false, UnsupportedAction
	}
	action := model.Action(ev.Action.V)
	if !action.IsUpsert() && !action.IsDelete() {
		return false, UnsupportedAction
	}

	if action.IsDelete() {
		if _, ok := levels[rank]; !ok {
			return false, NotIgnored
		}
		delete(levels, rank)
		return true, NotIgnored
	}

	if !ev.Price.Valid || !ev.Size.Valid {
		return false, MissingPriceSize
	}
	next := quote{price: ev.Price.V, size: ev.Size.V}
	if prev, ok := levels[rank]; ok && prev == next {
		return false, NotIgnored
	}
	levels[rank] = next
	return true, NotIgnored
}

// Timestamp returns the last timestamp seen on any accepted event.
func (l *Ladder) Timestamp() (int64, bool) {
	return l.ts, l.seen
}

// BestBid returns the lowest-ranked occupied bid level.
func (l *Ladder) BestBid() (model.Level, bool) {
	return best(l.bids)
}

// BestAsk returns the lowest-ranked occupied ask level.
func (l *Ladder) BestAsk() (model.Level, bool) {
	return best(l.asks)
}

// Depth returns the number of occupied bid and ask levels.
func (l *Ladder) Depth() (bids, asks int) {
	return len(l.bids), len(l.asks)
}

// Snapshot captures up to n occupied levels per side in rank order.
func (l *Ladder) Snapshot(instrument int64, n int, action model.Action, seq uint64) model.Snapshot {
	return model.Snapshot{
		Timestamp:  l.ts,
		Instrument: instrument,
		Action:     model.Some(int64(action)),
		Seq:        seq,
		Bids:       top(l.bids, n),
		Asks:       top(l.asks, n),
	}
}

func best(levels map[int]quote) (model.Level, bool) {
	if len(levels) == 0 {
		return model.Level{}, false
	}
	rank := -1
	for r := range levels {
		if rank < 0 || r < rank {
			rank = r
		}
	}
	q := levels[rank]
	return model.Level{Rank: rank, Price: q.price, Size: q.size}, true
}

func top(levels map[int]quote, n int) []model.Level {
	if len(levels) == 0 || n <= 0 {
		return nil
	}
	ranks := make([]int, 0, len(levels))
	for r := range levels {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	if len(ranks) > n {
		ranks = ranks[:n]
	}
	out := make([]model.Level, len(ranks))
	for i, r := range ranks {
		q := levels[r]
		out[i] = model.Level{Rank: r, Price: q.price, Size: q.size}
	}
	return out
}
