package candle

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradestream/candle-data/internal/model"
	"github.com/tradestream/candle-data/internal/timeframe"
)

// RollupExchange is the venue id stamped on merged multi-exchange candles.
const RollupExchange = "merged"

// Config configures a Builder for one output stream.
type Config struct {
	// Exchange, Asset, Currency identify the candles this builder emits.
	// In merged mode Exchange is RollupExchange and trades from any venue
	// are folded together.
	Exchange string
	Asset    string
	Currency string

	WidthMs    int64 // Bucket width
	LatenessMs int64 // Allowed lateness after bucket end before closing

	// GapFill emits zero-volume candles carrying the previous close for
	// buckets with no trades between two emitted candles.
	GapFill bool
}

// Correction is a late trade whose bucket already closed. The engine never
// mutates an emitted candle; the caller decides whether to replay.
type Correction struct {
	Trade       model.Trade
	BucketStart int64 // Start of the closed bucket the trade belonged to
}

// Builder folds one stream's trades into OHLCV buckets and closes them as
// the watermark passes. Not safe for concurrent use: each pipeline worker
// owns its own Builder.
type Builder struct {
	cfg   Config
	label string

	open map[int64]*accum

	lastEmittedStart int64
	hasEmitted       bool

	lastClose decimal.Decimal
	hasClose  bool

	corrections int64
}

// NewBuilder creates a builder for one output stream.
func NewBuilder(cfg Config) *Builder {
	return &Builder{
		cfg:   cfg,
		label: timeframe.Label(cfg.WidthMs),
		open:  make(map[int64]*accum, 4),
	}
}

// Offer folds a trade into its bucket. If the bucket was already closed it
// returns a Correction instead and the candle stays untouched.
func (b *Builder) Offer(t model.Trade) *Correction {
	start := timeframe.Floor(t.Time, b.cfg.WidthMs)

	if b.hasEmitted && start <= b.lastEmittedStart {
		b.corrections++
		return &Correction{Trade: t, BucketStart: start}
	}

	a := b.open[start]
	if a == nil {
		a = newAccum(start, start+b.cfg.WidthMs, t)
		b.open[start] = a
		return nil
	}
	a.fold(t)
	return nil
}

// Advance closes every bucket whose lateness window has passed under the
// given watermark and returns the candles ascending by bucket start.
func (b *Builder) Advance(watermarkMs int64) []model.Candle {
	var ready []int64
	for start, a := range b.open {
		if a.end+b.cfg.LatenessMs <= watermarkMs {
			ready = append(ready, start)
		}
	}
	return b.close(ready)
}

// Flush closes all open buckets regardless of watermark. Shutdown path:
// treated as if the final watermark had passed so no trade is lost.
func (b *Builder) Flush() []model.Candle {
	ready := make([]int64, 0, len(b.open))
	for start := range b.open {
		ready = append(ready, start)
	}
	return b.close(ready)
}

// OpenBuckets returns the number of buckets still accumulating.
func (b *Builder) OpenBuckets() int { return len(b.open) }

// Corrections returns the number of late trades diverted so far.
func (b *Builder) Corrections() int64 { return b.corrections }

func (b *Builder) close(ready []int64) []model.Candle {
	if len(ready) == 0 {
		return nil
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	var out []model.Candle
	for _, start := range ready {
		a := b.open[start]
		delete(b.open, start)

		if b.cfg.GapFill && b.hasClose {
			out = append(out, b.gapCandles(start)...)
		}

		c := a.candle(b.cfg, b.label)
		out = append(out, c)

		b.lastEmittedStart = start
		b.hasEmitted = true
		b.lastClose = c.Close
		b.hasClose = true
	}
	return out
}

// gapCandles fills empty buckets between the last emitted candle and the
// next one with previous-close placeholders.
func (b *Builder) gapCandles(nextStart int64) []model.Candle {
	var out []model.Candle
	for start := b.lastEmittedStart + b.cfg.WidthMs; start < nextStart; start += b.cfg.WidthMs {
		out = append(out, model.Candle{
			Exchange:    b.cfg.Exchange,
			Asset:       b.cfg.Asset,
			Currency:    b.cfg.Currency,
			Timeframe:   b.label,
			BucketStart: start,
			BucketEnd:   start + b.cfg.WidthMs,
			Open:        b.lastClose,
			High:        b.lastClose,
			Low:         b.lastClose,
			Close:       b.lastClose,
			VWAP:        b.lastClose,
			Volume:      decimal.Zero,
			TradeCount:  0,
			Type:        model.CandlePrevious,
		})
	}
	return out
}

// tieKey orders trades for open/close determination. The exchange component
// only matters in merged mode; per-exchange streams carry a constant venue.
type tieKey struct {
	time     int64
	exchange string
	seq      uint64
}

func (k tieKey) before(o tieKey) bool {
	if k.time != o.time {
		return k.time < o.time
	}
	if k.exchange != o.exchange {
		return k.exchange < o.exchange
	}
	return k.seq < o.seq
}

// accum is one open bucket's running aggregate.
type accum struct {
	start, end int64

	open, high, low, close decimal.Decimal
	openKey, closeKey      tieKey

	volume  decimal.Decimal
	vwapNum decimal.Decimal
	count   uint64
}

func newAccum(start, end int64, t model.Trade) *accum {
	k := tieKey{time: t.Time, exchange: t.Exchange, seq: t.Sequence}
	return &accum{
		start:    start,
		end:      end,
		open:     t.Price,
		high:     t.Price,
		low:      t.Price,
		close:    t.Price,
		openKey:  k,
		closeKey: k,
		volume:   t.Amount,
		vwapNum:  t.Price.Mul(t.Amount),
		count:    1,
	}
}

func (a *accum) fold(t model.Trade) {
	k := tieKey{time: t.Time, exchange: t.Exchange, seq: t.Sequence}

	if k.before(a.openKey) {
		a.open = t.Price
		a.openKey = k
	}
	if a.closeKey.before(k) {
		a.close = t.Price
		a.closeKey = k
	}
	if t.Price.GreaterThan(a.high) {
		a.high = t.Price
	}
	if t.Price.LessThan(a.low) {
		a.low = t.Price
	}

	a.volume = a.volume.Add(t.Amount)
	a.vwapNum = a.vwapNum.Add(t.Price.Mul(t.Amount))
	a.count++
}

func (a *accum) candle(cfg Config, label string) model.Candle {
	// volume > 0 is guaranteed: a bucket only exists once a trade with a
	// strictly positive amount was admitted.
	vwap := a.vwapNum.Div(a.volume)

	return model.Candle{
		Exchange:    cfg.Exchange,
		Asset:       cfg.Asset,
		Currency:    cfg.Currency,
		Timeframe:   label,
		BucketStart: a.start,
		BucketEnd:   a.end,
		Open:        a.open,
		High:        a.high,
		Low:         a.low,
		Close:       a.close,
		Volume:      a.volume,
		VWAP:        vwap,
		TradeCount:  a.count,
		Type:        model.CandleCreated,
	}
}
