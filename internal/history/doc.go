// Package history implements the paginated history walker.
//
// A Walker presents one continuous lazy snapshot sequence over a time range
// that internally spans multiple bounded pages from a history Provider. The
// first page carries a checkpoint; later pages are delta-only continuations
// applied to the ledger state carried over from the previous page, so book
// continuity across page boundaries is exact and no checkpoint is re-fetched.
//
// Compatibility assumption: a checkpoint sent by the producer is treated as
// authoritative only for the very first page. If a provider were to refresh
// checkpoints mid-range, the walker ignores them in favor of its own
// carried-over ledger state.
package history
