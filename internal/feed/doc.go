// Package feed implements trade tick sources.
//
// Sources:
//   - WS: a live WebSocket feed with reconnection and exponential backoff
//   - Replay: a JSON array or NDJSON fixture file, for backfills and tests
//
// Both push raw ticks into a Sink (the aggregation engine); validation and
// deduplication happen downstream, so sources stay dumb pipes.
package feed
