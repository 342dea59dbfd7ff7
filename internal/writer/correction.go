package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradestream/candle-data/internal/candle"
)

// CorrectionWriter consumes late-trade corrections from the engine's side
// channel and writes them to the candle_corrections table. The table is a
// diagnostic log: operators query it to decide whether a historical replay
// is warranted.
type CorrectionWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input <-chan candle.Correction

	db *pgxpool.Pool

	batch       []correctionRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewCorrectionWriter creates a new CorrectionWriter.
func NewCorrectionWriter(
	cfg WriterConfig,
	input <-chan candle.Correction,
	db *pgxpool.Pool,
	logger *slog.Logger,
) *CorrectionWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorrectionWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]correctionRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming corrections and writing to the database.
func (w *CorrectionWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("correction writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *CorrectionWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping correction writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("correction writer stopped")
	case <-ctx.Done():
		w.logger.Warn("correction writer stop timed out")
	}

	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *CorrectionWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop runs to channel close so corrections surfaced while the engine
// flushes its final buckets are still recorded.
func (w *CorrectionWriter) consumeLoop() {
	defer w.wg.Done()

	for c := range w.input {
		w.handleCorrection(c)
	}
	w.flush(context.Background())
}

func (w *CorrectionWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *CorrectionWriter) handleCorrection(c candle.Correction) {
	row := w.transform(c)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a Correction to a correctionRow.
func (w *CorrectionWriter) transform(c candle.Correction) correctionRow {
	return correctionRow{
		ID:          uuid.New().String(),
		Exchange:    c.Trade.Exchange,
		Asset:       c.Trade.Asset,
		Currency:    c.Trade.Currency,
		BucketStart: c.BucketStart,
		TradeTime:   c.Trade.Time,
		Side:        c.Trade.Side.String(),
		Price:       c.Trade.Price.String(),
		Amount:      c.Trade.Amount.String(),
		RecordedAt:  time.Now().UnixMicro(),
	}
}

func (w *CorrectionWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]correctionRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed corrections",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

func (w *CorrectionWriter) batchInsert(ctx context.Context, rows []correctionRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO candle_corrections (id, exchange, asset, currency, bucket_start,
				trade_time, side, price, amount, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, r.ID, r.Exchange, r.Asset, r.Currency, r.BucketStart,
			r.TradeTime, r.Side, r.Price, r.Amount, r.RecordedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
