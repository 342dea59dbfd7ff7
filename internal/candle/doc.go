// Package candle implements the bucketizer and candle aggregator.
//
// Trades are assigned to fixed-width, half-open time buckets by floor
// division on event time. A bucket stays open until the watermark passes its
// end plus the configured lateness, then it is closed and becomes an
// immutable candle. Trades for an already-closed bucket are routed to a
// correction channel; an emitted candle is never revised.
//
// Rollup across exchanges (merged mode) folds trades from several venues
// into one synthetic candle per (asset, currency); open/close ties at
// identical event time are broken by (time, exchange lexical order,
// sequence).
package candle
