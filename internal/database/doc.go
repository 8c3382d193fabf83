// Package database opens the PostgreSQL pool used by the warehouse sink and
// creates the two record tables it loads:
//   - book_snapshots: one row per ladder change, levels as JSONB
//   - liquidity_1s: one row per instrument per second
package database
