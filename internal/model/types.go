package model

import (
	"database/sql"
	"fmt"
)

// -----------------------------------------------------------------------------
// Feed Codes
// -----------------------------------------------------------------------------

// Action is the market data update action carried by each entry.
type Action int64

const (
	ActionNew     Action = 0
	ActionChange  Action = 1
	ActionDelete  Action = 2
	ActionOverlay Action = 5
)

// IsUpsert reports whether the action inserts or replaces a level.
// New, Change and Overlay are treated identically.
func (a Action) IsUpsert() bool {
	return a == ActionNew || a == ActionChange || a == ActionOverlay
}

// IsDelete reports whether the action removes a level.
func (a Action) IsDelete() bool {
	return a == ActionDelete
}

// Side is the book side of an entry (entry type on the wire).
type Side int64

const (
	SideBid Side = 0
	SideAsk Side = 1
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", int64(s))
	}
}

// NanosPerSecond converts feed timestamps to whole-second buckets.
const NanosPerSecond = int64(1_000_000_000)

// SecondOf floors a nanosecond timestamp to its whole second.
func SecondOf(tsNanos int64) int64 {
	s := tsNanos / NanosPerSecond
	if tsNanos < 0 && tsNanos%NanosPerSecond != 0 {
		s--
	}
	return s
}

// -----------------------------------------------------------------------------
// Mapping
// -----------------------------------------------------------------------------

// Mapping assigns each semantic field to a token position within an entry.
// Field names follow the exchange file format so mapping files stay portable.
type Mapping struct {
	Action     int `json:"md_update_action_idx" yaml:"md_update_action_idx"`
	Side       int `json:"entry_type_idx" yaml:"entry_type_idx"`
	Level      int `json:"price_level_idx" yaml:"price_level_idx"`
	Instrument int `json:"security_id_idx" yaml:"security_id_idx"`
	Price      int `json:"price_idx" yaml:"price_idx"`
	Size       int `json:"size_idx" yaml:"size_idx"`
	Timestamp  int `json:"ts_ns_idx" yaml:"ts_ns_idx"`
}

// Indices returns the seven indices in a fixed order.
func (m Mapping) Indices() [7]int {
	return [7]int{m.Action, m.Side, m.Level, m.Instrument, m.Price, m.Size, m.Timestamp}
}

// Width is the minimum entry length that carries every mapped field.
func (m Mapping) Width() int {
	w := 0
	for _, idx := range m.Indices() {
		if idx+1 > w {
			w = idx + 1
		}
	}
	return w
}

// Validate checks that every index is non-negative and no two roles share a column.
func (m Mapping) Validate() error {
	names := [7]string{"md_update_action_idx", "entry_type_idx", "price_level_idx",
		"security_id_idx", "price_idx", "size_idx", "ts_ns_idx"}
	seen := make(map[int]string, 7)
	for i, idx := range m.Indices() {
		if idx < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", names[i], idx)
		}
		if other, ok := seen[idx]; ok {
			return fmt.Errorf("%s and %s share index %d", other, names[i], idx)
		}
		seen[idx] = names[i]
	}
	return nil
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// RawEvent is one decoded feed entry. Any field may be absent.
type RawEvent struct {
	Action     sql.Null[int64]
	Side       sql.Null[int64]
	Level      sql.Null[int64]
	Instrument sql.Null[int64]
	Price      sql.Null[float64]
	Size       sql.Null[int64]
	Timestamp  sql.Null[int64] // ns since epoch

	// BadFields counts tokens that were present but failed numeric conversion.
	BadFields int
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// Level is one occupied rank on one side of a ladder.
type Level struct {
	Rank  int     // 0 = best
	Price float64 // Level price
	Size  int64   // Quantity at this level
}

// Snapshot is the top-N view of one instrument's ladder after an observable change.
type Snapshot struct {
	Timestamp  int64           // Ladder last-seen timestamp (ns), 0 if never seen
	Instrument int64           // Security id
	Action     sql.Null[int64] // Action code of the event that caused the change
	Seq        uint64          // Per-partition emission number, final sort key
	Bids       []Level         // Occupied bid levels, rank ascending, at most N
	Asks       []Level         // Occupied ask levels, rank ascending, at most N
}

// BestBid returns the lowest-ranked occupied bid level.
func (s Snapshot) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest-ranked occupied ask level.
func (s Snapshot) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}

// Second is the whole-second bucket the snapshot falls in.
func (s Snapshot) Second() int64 {
	return SecondOf(s.Timestamp)
}

// -----------------------------------------------------------------------------
// Per-Second Metrics
// -----------------------------------------------------------------------------

// BucketKey identifies one (instrument, second) bucket.
type BucketKey struct {
	Instrument int64
	Second     int64
}

// Counts holds update and cancel counts classified from raw events.
type Counts struct {
	Updates int64
	Cancels int64
}

// Add returns the element-wise sum.
func (c Counts) Add(o Counts) Counts {
	return Counts{Updates: c.Updates + o.Updates, Cancels: c.Cancels + o.Cancels}
}

// MetricRecord is the state of one instrument at the close of one second.
type MetricRecord struct {
	Instrument int64
	Second     int64

	BestBid sql.Null[float64]
	BestAsk sql.Null[float64]
	BidSize sql.Null[int64]
	AskSize sql.Null[int64]

	SpreadAbs  sql.Null[float64]
	SpreadRel  sql.Null[float64]
	Imbalance  sql.Null[float64]
	Microprice sql.Null[float64]

	TotalBidVolume int64
	TotalAskVolume int64
	AvgBidPrice    sql.Null[float64]
	AvgAskPrice    sql.Null[float64]
	DepthRatio     sql.Null[float64]

	UpdateCount int64
	CancelCount int64

	Midprice        sql.Null[float64]
	DepthImbalance  sql.Null[float64]
	DepthMicroprice sql.Null[float64] // microprice over the average prices of all levels
	TopVolumeRatio  sql.Null[float64] // best-level size share of total depth
}

// Some wraps a present value.
func Some[T any](v T) sql.Null[T] {
	return sql.Null[T]{V: v, Valid: true}
}
