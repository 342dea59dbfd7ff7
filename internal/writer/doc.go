// Package writer implements batch writers for the candle store.
//
// Writers:
//   - Candle writer (TimescaleDB): closed candles, base and rollup timeframes
//   - Correction writer (TimescaleDB): late-trade diagnostics
//
// All writers use append-only semantics (never update, only insert).
// Prices are stored as NUMERIC text to preserve exact decimal values.
package writer
