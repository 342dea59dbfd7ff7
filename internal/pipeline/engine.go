package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tradestream/candle-data/internal/candle"
	"github.com/tradestream/candle-data/internal/model"
	"github.com/tradestream/candle-data/internal/normalize"
)

// Engine is the trade stream aggregation engine. Raw ticks go in through
// Offer/TryOffer; closed candles come out of Candles() in bucket order per
// stream, with late-trade corrections on a side channel.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	workers map[model.StreamKey]*worker
	closed  bool
	wg      sync.WaitGroup

	candles chan model.Candle
	corrs   chan candle.Correction

	stats engineStats
}

// New creates an engine. Zero-valued config fields fall back to defaults.
func New(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BucketWidthMs <= 0 {
		cfg.BucketWidthMs = def.BucketWidthMs
	}
	if cfg.MaxOutOfOrderDelayMs <= 0 {
		cfg.MaxOutOfOrderDelayMs = def.MaxOutOfOrderDelayMs
	}
	if cfg.LatenessMs < 0 {
		cfg.LatenessMs = def.LatenessMs
	}
	if cfg.DedupWindowMultiplier <= 0 {
		cfg.DedupWindowMultiplier = def.DedupWindowMultiplier
	}
	if cfg.RollupMode == "" {
		cfg.RollupMode = def.RollupMode
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.CandleBuffer <= 0 {
		cfg.CandleBuffer = def.CandleBuffer
	}
	if cfg.CorrectionBuffer <= 0 {
		cfg.CorrectionBuffer = def.CorrectionBuffer
	}

	return &Engine{
		cfg:     cfg,
		logger:  logger,
		workers: make(map[model.StreamKey]*worker),
		candles: make(chan model.Candle, cfg.CandleBuffer),
		corrs:   make(chan candle.Correction, cfg.CorrectionBuffer),
		stats:   newEngineStats(),
	}
}

// Offer ingests one raw tick, blocking while the stream's queue is full.
// A rejected tick returns its normalization error; the engine keeps running.
func (e *Engine) Offer(ctx context.Context, raw model.RawTrade) error {
	t, w, err := e.admit(raw)
	if err != nil {
		return err
	}
	return w.in.send(ctx, t)
}

// TryOffer ingests one raw tick without blocking; a full queue returns
// ErrOverloaded and the caller may retry.
func (e *Engine) TryOffer(raw model.RawTrade) error {
	t, w, err := e.admit(raw)
	if err != nil {
		return err
	}
	return w.in.trySend(t)
}

// admit validates the tick and resolves its worker.
func (e *Engine) admit(raw model.RawTrade) (model.Trade, *worker, error) {
	e.stats.received()

	t, err := normalize.Normalize(raw)
	if err != nil {
		e.stats.rejected(normalize.Reason(err))
		e.logger.Debug("trade rejected",
			"reason", normalize.Reason(err),
			"error", err,
			"exchange", raw.Exchange,
			"time", raw.Time,
		)
		return model.Trade{}, nil, err
	}

	key := t.Key()
	if e.cfg.RollupMode == RollupMerged {
		key.Exchange = candle.RollupExchange
	}

	w, err := e.worker(key)
	if err != nil {
		return model.Trade{}, nil, err
	}
	return t, w, nil
}

// worker returns the pipeline for a stream key, starting one on first use.
func (e *Engine) worker(key model.StreamKey) (*worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if w, ok := e.workers[key]; ok {
		return w, nil
	}

	w := newWorker(key, e.cfg, e.candles, e.corrs, &e.stats, e.logger)
	e.workers[key] = w
	e.wg.Add(1)
	go w.run(&e.wg)

	e.logger.Info("stream pipeline started",
		"stream", key.String(),
		"bucket_width_ms", e.cfg.BucketWidthMs,
		"rollup_mode", e.cfg.RollupMode,
	)
	return w, nil
}

// Candles returns the ordered, append-only sequence of closed candles.
// The channel closes once every worker has drained; it is not restartable.
// Replay means feeding historical trades into a fresh engine.
func (e *Engine) Candles() <-chan model.Candle { return e.candles }

// Corrections returns the side channel of late trades whose buckets had
// already closed. Consumers decide whether to trigger a replay.
func (e *Engine) Corrections() <-chan candle.Correction { return e.corrs }

// Stats returns a snapshot of health counters.
func (e *Engine) Stats() Stats {
	s := e.stats.snapshot()

	e.mu.Lock()
	s.Workers = len(e.workers)
	for _, w := range e.workers {
		s.QueueDepth += w.in.depth()
		s.OpenBuckets += int(w.openBuckets.Load())
	}
	e.mu.Unlock()
	return s
}

// Close stops ingestion, flushes every open bucket as if the final watermark
// had passed, and closes the output channels. The context bounds the wait
// for workers to finish draining; on timeout Close returns early and the
// outputs close once the remaining candles have been consumed.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	workers := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	for _, w := range workers {
		w.in.close()
	}

	// Workers may still be draining into the outputs when the context
	// expires; the channels close only once every sender is gone, so a
	// timed-out Close never turns a blocked send into a panic.
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(e.candles)
		close(e.corrs)
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine closed", "streams", len(workers))
		return nil
	case <-ctx.Done():
		e.logger.Warn("engine close timed out")
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// Stats
// -----------------------------------------------------------------------------

type engineStats struct {
	mu             sync.Mutex
	receivedN      int64
	admittedN      int64
	rejectedN      map[string]int64
	duplicatesN    int64
	lateN          int64
	correctionsN   int64
	candlesEmitted int64
	emittedByTF    map[string]int64
}

func newEngineStats() engineStats {
	return engineStats{
		rejectedN:   make(map[string]int64),
		emittedByTF: make(map[string]int64),
	}
}

func (s *engineStats) received()   { s.mu.Lock(); s.receivedN++; s.mu.Unlock() }
func (s *engineStats) admitted()   { s.mu.Lock(); s.admittedN++; s.mu.Unlock() }
func (s *engineStats) duplicate()  { s.mu.Lock(); s.duplicatesN++; s.mu.Unlock() }
func (s *engineStats) late()       { s.mu.Lock(); s.lateN++; s.mu.Unlock() }
func (s *engineStats) correction() { s.mu.Lock(); s.correctionsN++; s.mu.Unlock() }
func (s *engineStats) emitted(tf string) {
	s.mu.Lock()
	s.candlesEmitted++
	s.emittedByTF[tf]++
	s.mu.Unlock()
}

func (s *engineStats) rejected(reason string) {
	s.mu.Lock()
	s.rejectedN[reason]++
	s.mu.Unlock()
}

func (s *engineStats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	rejected := make(map[string]int64, len(s.rejectedN))
	for k, v := range s.rejectedN {
		rejected[k] = v
	}
	byTF := make(map[string]int64, len(s.emittedByTF))
	for k, v := range s.emittedByTF {
		byTF[k] = v
	}
	return Stats{
		Received:           s.receivedN,
		Admitted:           s.admittedN,
		Rejected:           rejected,
		Duplicates:         s.duplicatesN,
		Late:               s.lateN,
		Corrections:        s.correctionsN,
		CandlesEmitted:     s.candlesEmitted,
		CandlesByTimeframe: byTF,
	}
}
