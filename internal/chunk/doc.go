// Package chunk bounds the memory of the snapshot sort. Snapshots are
// buffered per worker, sorted and persisted as immutable chunk files, then
// merged in rounds of bounded k-way merges into one globally ordered chunk.
//
// Chunk files are named by the span of leaf ids they cover
// (span-<lo>-<hi>.chunk) and are only ever published by atomic rename, so a
// directory left behind by an interrupted run can be listed and merged again.
package chunk
