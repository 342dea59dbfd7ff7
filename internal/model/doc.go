// Package model defines shared data types used across the candle engine.
//
// Conventions:
//   - Prices and amounts: decimal.Decimal, parsed exactly from the wire
//     (never through binary floating point)
//   - Event times: int64 milliseconds since Unix epoch, UTC
//   - Timestamps: ISO 8601 UTC strings with millisecond precision, always
//     derived from the epoch time
//   - Stream keys: (exchange, asset, currency), exchange ids lowercase
package model
