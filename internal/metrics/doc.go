// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Trade admission, rejection and dedup rates
//   - Late trades and correction counts
//   - Candle emission rates and open bucket counts
//   - Writer batch sizes and error counts
package metrics
