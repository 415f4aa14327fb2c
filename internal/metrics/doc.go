// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session connection state, reconnects and frame drops
//   - Reconstruction snapshot and sequence-gap counts
//   - Archive writer insert counts, errors and flush latencies
package metrics
