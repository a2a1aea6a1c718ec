// Package metrics provides metrics collector implementations.
//
// Implementations:
//   - prometheus: client_golang counters, gauges and histograms
//   - noop: discards everything, for tests and tools
package metrics
