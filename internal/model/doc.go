// Package model defines shared data types used across the depth-feed replay pipeline.
//
// Conventions:
//   - Prices: float64 as carried by the feed
//   - Sizes: int64 contracts
//   - Timestamps: int64 nanoseconds since Unix epoch
//   - Instruments: int64 security ids
//   - Optional values: sql.Null[T]; Valid=false means absent, never zero
package model
