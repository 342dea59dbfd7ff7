package candle

import (
	"github.com/shopspring/decimal"

	"github.com/tradestream/candle-data/internal/model"
	"github.com/tradestream/candle-data/internal/timeframe"
)

// Rollup batches one stream's closed candles into a higher timeframe:
// open from the first child, close from the last, extrema for high/low,
// summed volume, VWAP recomputed from the children's notional.
//
// Children must arrive ascending by bucket start (the builder's emission
// order); a child for an earlier parent bucket is dropped and counted.
type Rollup struct {
	tf  timeframe.Timeframe
	cur *parentAccum

	dropped int64
}

// NewRollup creates a rollup into the given timeframe.
func NewRollup(tf timeframe.Timeframe) *Rollup {
	return &Rollup{tf: tf}
}

// Offer folds a closed child candle and returns the parent candle when the
// child crosses into a new parent bucket.
func (r *Rollup) Offer(child model.Candle) []model.Candle {
	start := timeframe.Floor(child.BucketStart, r.tf.WidthMs)

	if r.cur == nil {
		r.cur = newParentAccum(start, r.tf, child)
		return nil
	}

	if start < r.cur.start {
		r.dropped++
		return nil
	}

	if start > r.cur.start {
		closed := r.cur.candle(r.tf.Str)
		r.cur = newParentAccum(start, r.tf, child)
		return []model.Candle{closed}
	}

	r.cur.fold(child)
	return nil
}

// Flush closes the in-progress parent bucket, if any.
func (r *Rollup) Flush() []model.Candle {
	if r.cur == nil {
		return nil
	}
	closed := r.cur.candle(r.tf.Str)
	r.cur = nil
	return []model.Candle{closed}
}

// Dropped returns the number of out-of-order children discarded.
func (r *Rollup) Dropped() int64 { return r.dropped }

type parentAccum struct {
	start, end int64

	exchange, asset, currency string

	open, high, low, close decimal.Decimal
	volume, vwapNum        decimal.Decimal
	count                  uint64
}

func newParentAccum(start int64, tf timeframe.Timeframe, child model.Candle) *parentAccum {
	return &parentAccum{
		start:    start,
		end:      start + tf.WidthMs,
		exchange: child.Exchange,
		asset:    child.Asset,
		currency: child.Currency,
		open:     child.Open,
		high:     child.High,
		low:      child.Low,
		close:    child.Close,
		volume:   child.Volume,
		vwapNum:  child.VWAP.Mul(child.Volume),
		count:    child.TradeCount,
	}
}

func (p *parentAccum) fold(child model.Candle) {
	if child.High.GreaterThan(p.high) {
		p.high = child.High
	}
	if child.Low.LessThan(p.low) {
		p.low = child.Low
	}
	p.close = child.Close
	p.volume = p.volume.Add(child.Volume)
	p.vwapNum = p.vwapNum.Add(child.VWAP.Mul(child.Volume))
	p.count += child.TradeCount
}

func (p *parentAccum) candle(label string) model.Candle {
	// A parent built purely from gap-fill children has zero volume; its
	// VWAP degrades to the carried close.
	vwap := p.close
	typ := model.CandlePrevious
	if p.volume.IsPositive() {
		vwap = p.vwapNum.Div(p.volume)
		typ = model.CandleCreated
	}

	return model.Candle{
		Exchange:    p.exchange,
		Asset:       p.asset,
		Currency:    p.currency,
		Timeframe:   label,
		BucketStart: p.start,
		BucketEnd:   p.end,
		Open:        p.open,
		High:        p.high,
		Low:         p.low,
		Close:       p.close,
		Volume:      p.volume,
		VWAP:        vwap,
		TradeCount:  p.count,
		Type:        typ,
	}
}
