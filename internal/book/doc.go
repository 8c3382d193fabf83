// Package book maintains per-instrument price ladders built from decoded feed
// events and produces top-N snapshots whenever a ladder observably changes.
//
// A Ladder holds two rank-keyed level maps. Upserts (New, Change, Overlay)
// insert or replace a rank; Delete removes it entirely, so an absent rank
// always means no liquidity at that rank.
//
// A Registry owns the ladders of one partition. It is not safe for
// concurrent use; each pipeline worker owns exactly one.
package book
