// Package metrics provides Prometheus metrics for monitoring a replay run.
//
// Key metrics:
//   - Ingest volume: lines, decoded entries, malformed entries, field errors
//   - Ladder outcomes: applied, unchanged and ignored events by reason
//   - Output volume: snapshots, chunks, merge batches, metric records
//   - Partition queue depth
package metrics
