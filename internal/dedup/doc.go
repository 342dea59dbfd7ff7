// Package dedup implements the duplicate-trade filter.
//
// Feeds re-deliver ticks on reconnects and snapshot overlaps; the filter
// keeps a bounded sliding window of trade fingerprints per stream and drops
// exact duplicates (same seven business fields). Dropped records are counted,
// never fatal.
package dedup
