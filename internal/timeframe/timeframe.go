// Package timeframe defines the registry of supported candle timeframes and
// the bucket-alignment arithmetic shared by the aggregation and rollup paths.
package timeframe

import (
	"fmt"
	"sort"
)

// Timeframe describes one supported candle width.
type Timeframe struct {
	Str     string // Display form (e.g. "5m")
	Minutes int    // Width in minutes
	WidthMs int64  // Width in milliseconds
}

const minuteMs = int64(60_000)

// registry holds the valid timeframes, ascending by width.
var registry = []Timeframe{
	{Str: "1m", Minutes: 1},
	{Str: "5m", Minutes: 5},
	{Str: "15m", Minutes: 15},
	{Str: "30m", Minutes: 30},
	{Str: "1h", Minutes: 60},
	{Str: "2h", Minutes: 120},
	{Str: "4h", Minutes: 240},
	{Str: "8h", Minutes: 480},
	{Str: "12h", Minutes: 720},
	{Str: "1d", Minutes: 1440},
}

func init() {
	for i := range registry {
		registry[i].WidthMs = int64(registry[i].Minutes) * minuteMs
	}
}

// Valid returns all supported timeframes, ascending by width.
func Valid() []Timeframe {
	out := make([]Timeframe, len(registry))
	copy(out, registry)
	return out
}

// FromString looks up a timeframe by display form ("5m", "1h", ...).
func FromString(s string) (Timeframe, error) {
	for _, tf := range registry {
		if tf.Str == s {
			return tf, nil
		}
	}
	return Timeframe{}, fmt.Errorf("invalid timeframe %q", s)
}

// FromMinutes looks up a timeframe by width in minutes.
func FromMinutes(m int) (Timeframe, error) {
	for _, tf := range registry {
		if tf.Minutes == m {
			return tf, nil
		}
	}
	return Timeframe{}, fmt.Errorf("invalid timeframe %d minutes", m)
}

// Label returns the display form for an arbitrary bucket width. Widths that
// match a registry entry get the registry form; anything else is rendered as
// raw milliseconds so diagnostic labels stay unambiguous.
func Label(widthMs int64) string {
	for _, tf := range registry {
		if tf.WidthMs == widthMs {
			return tf.Str
		}
	}
	return fmt.Sprintf("%dms", widthMs)
}

// Floor aligns an epoch-ms time down to the nearest bucket boundary.
func Floor(ms, widthMs int64) int64 {
	return (ms / widthMs) * widthMs
}

// Rollups returns the registry timeframes an exact multiple of widthMs,
// excluding widthMs itself: the higher timeframes a stream of widthMs candles
// can be batched into.
func Rollups(widthMs int64) []Timeframe {
	var out []Timeframe
	for _, tf := range registry {
		if tf.WidthMs > widthMs && tf.WidthMs%widthMs == 0 {
			out = append(out, tf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WidthMs < out[j].WidthMs })
	return out
}
