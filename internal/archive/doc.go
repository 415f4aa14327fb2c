// Package archive implements batch writers persisting reconstructed
// snapshots, raw deltas and trades to TimescaleDB.
//
// Writers consume from a growable Queue, accumulate rows, and flush on a
// size threshold or a ticker. All writes are append-only inserts with
// ON CONFLICT DO NOTHING, so replayed ranges archive idempotently.
package archive
