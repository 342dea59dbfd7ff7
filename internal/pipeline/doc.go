// Package pipeline wires the engine together: one worker per
// (exchange, asset, currency) stream running normalize → dedup → sequence →
// bucketize/aggregate, fanning closed candles into a single ordered output.
//
// Workers share no mutable state; the only suspension point is the bounded
// inbound queue, which gives producers backpressure (block, or ErrOverloaded
// from the non-blocking path) instead of silently dropping ticks. Closing
// the engine flushes every open bucket so no admitted trade is lost.
package pipeline
