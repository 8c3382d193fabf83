// Package sink writes the two record streams produced by a run.
//
// Sinks:
//   - Snapshot CSV (one row per emitted book snapshot, top-N levels per side)
//   - Metric CSV (one row per instrument per second)
//   - Postgres (book_snapshots and liquidity_1s via COPY)
//
// CSV files are written to a temporary sibling and renamed into place on
// Close. Discard drops whatever was written so a failed run leaves no
// partial output behind.
package sink
