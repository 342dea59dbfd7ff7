// Package database provides connection pool management for TimescaleDB.
//
// The aggregator keeps one time-series store: candles, rollups and
// late-trade diagnostics all live in TimescaleDB hypertables.
package database
