// Package normalize validates raw wire ticks and canonicalizes them into
// model.Trade records.
//
// The normalizer is a pure function: it either returns a canonical trade or
// a typed rejection error. Rejections are reported through counters by the
// pipeline; malformed input never propagates further downstream.
package normalize
