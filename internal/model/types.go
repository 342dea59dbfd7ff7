package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Trade Types
// -----------------------------------------------------------------------------

// Side is the taker side of a trade.
type Side int8

const (
	Buy Side = iota
	Sell
)

// String returns the wire form of the side.
func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", int8(s))
	}
}

// ParseSide converts a wire string into a Side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	default:
		return 0, false
	}
}

// Trade is a canonical, validated trade tick.
type Trade struct {
	Exchange string          // Lowercase venue id (e.g. "kraken")
	Asset    string          // Base asset (e.g. "BTC")
	Currency string          // Quote currency (e.g. "USD")
	Time     int64           // Event time (ms since epoch), source of truth
	Side     Side            // Taker side
	Price    decimal.Decimal // Strictly positive
	Amount   decimal.Decimal // Strictly positive, may be sub-satoshi
	Sequence uint64          // Per-(exchange,asset,currency) arrival counter
}

// Key returns the stream key this trade belongs to.
func (t Trade) Key() StreamKey {
	return StreamKey{Exchange: t.Exchange, Asset: t.Asset, Currency: t.Currency}
}

// Timestamp derives the ISO 8601 UTC display timestamp from Time.
// Round-tripping an admitted trade's wire timestamp through Time must
// reproduce it exactly.
func (t Trade) Timestamp() string {
	return FormatTimestamp(t.Time)
}

// DuplicateOf reports whether two trades are business-level duplicates:
// all seven business fields equal. Sequence is excluded on purpose, a
// re-delivered tick gets a fresh sequence number but is still the same trade.
func (t Trade) DuplicateOf(o Trade) bool {
	return t.Exchange == o.Exchange &&
		t.Asset == o.Asset &&
		t.Currency == o.Currency &&
		t.Time == o.Time &&
		t.Side == o.Side &&
		t.Price.Equal(o.Price) &&
		t.Amount.Equal(o.Amount)
}

// StreamKey identifies one instrument stream on one venue.
type StreamKey struct {
	Exchange string
	Asset    string
	Currency string
}

// String returns a compact form used in logs and map keys.
func (k StreamKey) String() string {
	return k.Exchange + ":" + k.Asset + "/" + k.Currency
}

// FormatTimestamp renders an epoch-ms time as ISO 8601 UTC with
// millisecond precision (e.g. "2019-07-01T00:00:03.172Z").
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// -----------------------------------------------------------------------------
// Candle Types
// -----------------------------------------------------------------------------

// CandleType marks how a candle was produced.
type CandleType string

const (
	// CandleCreated is a candle built from admitted trades.
	CandleCreated CandleType = "created"

	// CandlePrevious is a gap-fill candle: zero volume, OHLC carried from
	// the prior candle's close.
	CandlePrevious CandleType = "previous"
)

// Candle is an OHLCV summary of one time bucket. Immutable once closed.
type Candle struct {
	Exchange  string `json:"exchange"`
	Asset     string `json:"asset"`
	Currency  string `json:"currency"`
	Timeframe string `json:"timeframe"` // e.g. "1m", or "<width>ms" for non-registry widths

	BucketStart int64 `json:"time"`       // Inclusive (ms since epoch)
	BucketEnd   int64 `json:"bucket_end"` // Exclusive

	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`

	Volume     decimal.Decimal `json:"volume"` // Sum of amounts
	VWAP       decimal.Decimal `json:"vwap"`   // Σ price·amount / Σ amount
	TradeCount uint64          `json:"trade_count"`

	Type CandleType `json:"type"`
}

// Timestamp derives the ISO 8601 UTC display timestamp of the bucket start.
func (c Candle) Timestamp() string {
	return FormatTimestamp(c.BucketStart)
}
