package model

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotANumber is returned when a loose numeric literal holds something
// that cannot be parsed as a decimal number.
var ErrNotANumber = errors.New("not a number")

// Numeric is a loose numeric literal as it appears on the wire: feeds
// serialize prices and amounts as JSON numbers or as strings, sometimes in
// scientific notation ("2.5e-7"). The raw text is kept verbatim and resolved
// into a decimal exactly once, at the normalizer boundary.
type Numeric struct {
	raw string
	set bool
}

// NewNumeric wraps a literal string. Intended for tests and replay tooling.
func NewNumeric(s string) Numeric {
	return Numeric{raw: s, set: true}
}

// IsSet reports whether the field was present on the wire.
func (n Numeric) IsSet() bool { return n.set }

// Raw returns the literal text as delivered.
func (n Numeric) Raw() string { return n.raw }

// Decimal resolves the literal into an exact decimal.
func (n Numeric) Decimal() (decimal.Decimal, error) {
	if !n.set || n.raw == "" {
		return decimal.Decimal{}, ErrNotANumber
	}
	d, err := decimal.NewFromString(n.raw)
	if err != nil {
		return decimal.Decimal{}, ErrNotANumber
	}
	return d, nil
}

// UnmarshalJSON accepts a JSON number or a quoted string.
func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = Numeric{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Numeric{raw: s, set: true}
		return nil
	}
	// Keep the number's literal text; parsing through float64 would lose
	// precision for values like 1e-8 before they ever reach the normalizer.
	*n = Numeric{raw: string(data), set: true}
	return nil
}

// MarshalJSON writes the literal back out as a JSON number when possible.
func (n Numeric) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	if _, err := decimal.NewFromString(n.raw); err != nil {
		return json.Marshal(n.raw)
	}
	return []byte(n.raw), nil
}

// RawTrade is a trade tick exactly as delivered by a feed, before any
// validation. Field types are deliberately loose.
type RawTrade struct {
	Exchange  string  `json:"exchange"`
	Asset     string  `json:"asset"`
	Currency  string  `json:"currency"`
	Time      int64   `json:"time"`      // ms since epoch
	Timestamp string  `json:"timestamp"` // ISO 8601, must agree with Time
	Side      string  `json:"side"`      // "buy" or "sell"
	Price     Numeric `json:"price"`
	Amount    Numeric `json:"amount"`
}

// Key returns the stream key of the raw tick. Exchange case is preserved;
// canonicalization happens in the normalizer.
func (r RawTrade) Key() StreamKey {
	return StreamKey{Exchange: r.Exchange, Asset: r.Asset, Currency: r.Currency}
}
