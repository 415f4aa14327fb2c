// Package model defines shared data types used across depthstream.
//
// Conventions:
//   - Prices and sizes: float64, parsed from decimal strings on the wire
//   - Timestamps: int64 milliseconds since Unix epoch
//   - IDs: string for coins, uuid.UUID for trade IDs
package model
