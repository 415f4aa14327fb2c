// Package database provides connection pool management for PostgreSQL and TimescaleDB.
//
//   - PostgreSQL: instruments (relational data)
//   - TimescaleDB: book snapshots, deltas, trades (time-series data)
package database
