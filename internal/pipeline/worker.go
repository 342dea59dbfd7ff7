package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tradestream/candle-data/internal/candle"
	"github.com/tradestream/candle-data/internal/dedup"
	"github.com/tradestream/candle-data/internal/model"
	"github.com/tradestream/candle-data/internal/sequence"
	"github.com/tradestream/candle-data/internal/timeframe"
)

// worker runs one stream's pipeline: sequence assignment → dedup →
// resequencing → bucketing/aggregation → rollup. All stages after the queue
// read are synchronous; the queue is the only suspension point.
type worker struct {
	key    model.StreamKey
	logger *slog.Logger

	in *queue[model.Trade]

	seq       uint64
	filter    *dedup.Filter
	sequencer *sequence.Sequencer
	builder   *candle.Builder
	rollups   []*candle.Rollup

	out   chan<- model.Candle
	corrs chan<- candle.Correction

	stats *engineStats

	// openBuckets mirrors the builder's open bucket count for Stats();
	// the builder itself is worker-local and must not be read across
	// goroutines.
	openBuckets atomic.Int64
}

func newWorker(
	key model.StreamKey,
	cfg Config,
	out chan<- model.Candle,
	corrs chan<- candle.Correction,
	stats *engineStats,
	logger *slog.Logger,
) *worker {
	dedupWindow := cfg.BucketWidthMs * int64(1+cfg.DedupWindowMultiplier)

	var rollups []*candle.Rollup
	for _, label := range cfg.RollupTimeframes {
		tf, err := timeframe.FromString(label)
		if err != nil {
			// Validated at config load; an unknown label here is a
			// programming error worth surfacing, not a silent skip.
			logger.Error("skipping unknown rollup timeframe", "timeframe", label)
			continue
		}
		rollups = append(rollups, candle.NewRollup(tf))
	}

	return &worker{
		key:       key,
		logger:    logger.With("stream", key.String()),
		in:        newQueue[model.Trade](cfg.QueueSize),
		filter:    dedup.NewFilter(dedupWindow),
		sequencer: sequence.NewSequencer(cfg.MaxOutOfOrderDelayMs),
		builder: candle.NewBuilder(candle.Config{
			Exchange:   key.Exchange,
			Asset:      key.Asset,
			Currency:   key.Currency,
			WidthMs:    cfg.BucketWidthMs,
			LatenessMs: cfg.LatenessMs,
			GapFill:    cfg.GapFill,
		}),
		rollups: rollups,
		out:     out,
		corrs:   corrs,
		stats:   stats,
	}
}

// run consumes the inbound queue until the queue closes, then drains the
// buffered remainder and flushes every open bucket.
func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case t := <-w.in.items():
			w.process(t)
		case <-w.in.closed():
			w.drain()
			w.flush()
			return
		}
	}
}

func (w *worker) drain() {
	for {
		select {
		case t := <-w.in.items():
			w.process(t)
		default:
			return
		}
	}
}

// process pushes one admitted-candidate trade through the synchronous stages.
func (w *worker) process(t model.Trade) {
	w.seq++
	t.Sequence = w.seq

	if !w.filter.Offer(t) {
		w.stats.duplicate()
		w.logger.Debug("duplicate trade dropped",
			"time", t.Time,
			"price", t.Price,
			"amount", t.Amount,
		)
		return
	}
	w.stats.admitted()

	for _, r := range w.sequencer.Push(t) {
		if r.Late {
			w.stats.late()
		}
		w.offer(r.Trade)
	}

	watermark := w.sequencer.Watermark()
	w.emit(w.builder.Advance(watermark))
	w.filter.Evict(watermark)
	w.openBuckets.Store(int64(w.builder.OpenBuckets()))
}

// offer hands a released trade to the bucketizer, diverting trades for
// closed buckets to the correction channel.
func (w *worker) offer(t model.Trade) {
	corr := w.builder.Offer(t)
	if corr == nil {
		return
	}
	w.stats.correction()
	select {
	case w.corrs <- *corr:
	default:
		// The side channel is advisory; a reader that stops consuming
		// must not stall the hot path.
		w.logger.Warn("correction channel full, sample lost",
			"bucket_start", corr.BucketStart,
			"time", t.Time,
		)
	}
}

// flush closes all remaining buckets as if the final watermark had passed.
func (w *worker) flush() {
	for _, r := range w.sequencer.Flush() {
		w.offer(r.Trade)
	}
	w.emit(w.builder.Flush())
	for _, r := range w.rollups {
		w.send(r.Flush())
	}
	w.openBuckets.Store(0)
}

// emit forwards closed base candles downstream and feeds the rollups.
func (w *worker) emit(candles []model.Candle) {
	if len(candles) == 0 {
		return
	}
	w.send(candles)
	for _, r := range w.rollups {
		for _, c := range candles {
			w.send(r.Offer(c))
		}
	}
}

func (w *worker) send(candles []model.Candle) {
	for _, c := range candles {
		w.out <- c
		w.stats.emitted(c.Timeframe)
	}
}
