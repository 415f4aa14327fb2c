// Package book implements the per-side price-level ledger.
//
// A Ledger keeps one side of an order book as a slice of aggregated price
// levels sorted best-first (bids descending, asks ascending). Updates locate
// the level by binary search; a zero-size update deletes the level.
package book
