// Package reconstruct implements the order-book reconstruction engine.
//
// A reconstruction run seeds a ledger pair from a checkpoint and applies
// ordered deltas, either emitting one snapshot per delta (lazy iterator) or
// collapsing to a single final snapshot. Sequence-gap detection over a delta
// batch is exposed as a pure function.
//
// Input errors are fatal to the run: a malformed checkpoint refuses to
// construct and a malformed or out-of-order delta stops the run at that
// point. The caller restarts from a known-good checkpoint.
package reconstruct
