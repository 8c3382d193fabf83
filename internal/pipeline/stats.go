package pipeline

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/book"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// Stats is the audit report of one run.
type Stats struct {
	RunID   uuid.UUID
	Mapping model.Mapping

	LinesScanned     int64
	EntriesDecoded   int64
	MalformedEntries int64
	FieldErrors      int64
	EventsApplied    int64
	EventsUnchanged  int64
	SnapshotsEmitted int64
	Ignored          map[string]int64

	Instruments   int
	ChunksWritten int64
	MergeRounds   int
	MergeBatches  int64
	MetricRecords int64
}

// workerStats is accumulated by one worker and merged after ingest.
type workerStats struct {
	applied     int64
	unchanged   int64
	snapshots   int64
	instruments int
	chunks      int64
	ignored     map[book.IgnoreReason]int64
}

func (s *Stats) addWorker(w *workerStats) {
	s.EventsApplied += w.applied
	s.EventsUnchanged += w.unchanged
	s.SnapshotsEmitted += w.snapshots
	s.Instruments += w.instruments
	s.ChunksWritten += w.chunks
	if s.Ignored == nil {
		s.Ignored = make(map[string]int64)
	}
	for reason, n := range w.ignored {
		s.Ignored[reason.String()] += n
	}
}

// TotalIgnored sums ignored events over all reasons.
func (s Stats) TotalIgnored() int64 {
	var n int64
	for _, v := range s.Ignored {
		n += v
	}
	return n
}

// Log writes the final report.
func (s Stats) Log(logger *slog.Logger) {
	reasons := make([]string, 0, len(s.Ignored))
	for r := range s.Ignored {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	ignored := make([]any, 0, len(reasons))
	for _, r := range reasons {
		ignored = append(ignored, slog.Int64(r, s.Ignored[r]))
	}

	logger.Info("run complete",
		"run_id", s.RunID,
		"lines_scanned", s.LinesScanned,
		"entries_decoded", s.EntriesDecoded,
		"malformed_entries", s.MalformedEntries,
		"field_errors", s.FieldErrors,
		"events_applied", s.EventsApplied,
		"events_unchanged", s.EventsUnchanged,
		"snapshots_emitted", s.SnapshotsEmitted,
		slog.Group("events_ignored", ignored...),
		"instruments", s.Instruments,
		"chunks_written", s.ChunksWritten,
		"merge_rounds", s.MergeRounds,
		"merge_batches", s.MergeBatches,
		"metric_records", s.MetricRecords,
	)
}
