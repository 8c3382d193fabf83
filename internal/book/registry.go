package book

import (
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// Registry owns the ladders of one partition, keyed by instrument.
type Registry struct {
	maxDepth int
	levels   int
	ladders  map[int64]*Ladder
	seq      uint64
}

// NewRegistry creates a registry whose ladders accept levels 0..maxDepth and
// whose snapshots carry up to levels ranks per side.
func NewRegistry(maxDepth, levels int) *Registry {
	return &Registry{
		maxDepth: maxDepth,
		levels:   levels,
		ladders:  make(map[int64]*Ladder),
	}
}

// Apply routes ev to its instrument's ladder, creating it on first sight. When
// the ladder changes it returns the resulting snapshot with the next sequence
// number.
func (r *Registry) Apply(ev model.RawEvent) (model.Snapshot, bool, IgnoreReason) {
	if !ev.Instrument.Valid {
		return model.Snapshot{}, false, MissingInstrument
	}

	l, ok := r.ladders[ev.Instrument.V]
	if !ok {
		l = NewLadder(r.maxDepth)
		r.ladders[ev.Instrument.V] = l
	}

	changed, reason := l.Apply(ev)
	if !changed {
		return model.Snapshot{}, false, reason
	}

	r.seq++
	return l.Snapshot(ev.Instrument.V, r.levels, model.Action(ev.Action.V), r.seq), true, NotIgnored
}

// Ladder returns the ladder for instrument, if one exists.
func (r *Registry) Ladder(instrument int64) (*Ladder, bool) {
	l, ok := r.ladders[instrument]
	return l, ok
}

// Len returns the number of instruments seen.
func (r *Registry) Len() int {
	return len(r.ladders)
}
