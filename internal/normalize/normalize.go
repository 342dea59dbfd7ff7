package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tradestream/candle-data/internal/model"
)

// Rejection reasons. Each rejects the single record; none is fatal.
var (
	ErrMissingField       = errors.New("missing field")
	ErrMalformedNumber    = errors.New("malformed number")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrUnknownSide        = errors.New("unknown side")
	ErrNonPositiveQty     = errors.New("non-positive quantity")
)

// Reason maps a rejection error to its counter label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrMalformedNumber):
		return "malformed_number"
	case errors.Is(err, ErrMalformedTimestamp):
		return "malformed_timestamp"
	case errors.Is(err, ErrUnknownSide):
		return "unknown_side"
	case errors.Is(err, ErrNonPositiveQty):
		return "non_positive_quantity"
	default:
		return "other"
	}
}

// Normalize validates a raw wire tick and canonicalizes it into a Trade.
// The returned trade has Sequence zero; the pipeline assigns arrival
// sequence numbers at ingestion.
func Normalize(raw model.RawTrade) (model.Trade, error) {
	if raw.Exchange == "" || raw.Asset == "" || raw.Currency == "" {
		return model.Trade{}, fmt.Errorf("%w: exchange/asset/currency must be set", ErrMissingField)
	}

	if raw.Time <= 0 {
		return model.Trade{}, fmt.Errorf("%w: time %d", ErrMalformedTimestamp, raw.Time)
	}
	if err := checkTimestamp(raw.Time, raw.Timestamp); err != nil {
		return model.Trade{}, err
	}

	side, ok := model.ParseSide(raw.Side)
	if !ok {
		return model.Trade{}, fmt.Errorf("%w: %q", ErrUnknownSide, raw.Side)
	}

	price, err := raw.Price.Decimal()
	if err != nil {
		return model.Trade{}, fmt.Errorf("%w: price %q", ErrMalformedNumber, raw.Price.Raw())
	}
	amount, err := raw.Amount.Decimal()
	if err != nil {
		return model.Trade{}, fmt.Errorf("%w: amount %q", ErrMalformedNumber, raw.Amount.Raw())
	}

	if !price.IsPositive() {
		return model.Trade{}, fmt.Errorf("%w: price %s", ErrNonPositiveQty, price)
	}
	if !amount.IsPositive() {
		return model.Trade{}, fmt.Errorf("%w: amount %s", ErrNonPositiveQty, amount)
	}

	return model.Trade{
		Exchange: strings.ToLower(raw.Exchange),
		Asset:    raw.Asset,
		Currency: raw.Currency,
		Time:     raw.Time,
		Side:     side,
		Price:    price,
		Amount:   amount,
	}, nil
}

// checkTimestamp verifies the ISO display timestamp agrees with the epoch
// time to the millisecond. An absent timestamp is accepted (it is a derived
// field); a present one that disagrees is a malformed record.
func checkTimestamp(ms int64, iso string) error {
	if iso == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformedTimestamp, iso)
	}
	if parsed.UnixMilli() != ms {
		return fmt.Errorf("%w: time %d != timestamp %q", ErrMalformedTimestamp, ms, iso)
	}
	return nil
}
