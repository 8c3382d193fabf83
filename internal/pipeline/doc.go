// Package pipeline wires a run together.
//
//	source -> tokenizer -> decoder -> router -> workers (ladders + spoolers)
//	       -> chunk merge -> snapshot sinks
//	                      -> liquidity aggregator -> metric sinks
//
// The reader goroutine owns tokenizing, decoding and update/cancel counting.
// Events are partitioned by instrument, so each worker owns a disjoint set of
// ladders. Workers spool sorted leaf chunks; once ingest ends the chunk set is
// merged into one globally ordered chunk and streamed to the sinks. A run that
// fails after ingest can be finished later by Resume on the same chunk
// directory.
package pipeline
