package writer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradestream/candle-data/internal/candle"
	"github.com/tradestream/candle-data/internal/model"
)

func TestCandleWriter_Transform(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := make(chan model.Candle)
	w := NewCandleWriter(cfg, input, nil, nil)

	c := model.Candle{
		Exchange:    "kraken",
		Asset:       "BTC",
		Currency:    "USD",
		Timeframe:   "1m",
		BucketStart: 1561939200000,
		BucketEnd:   1561939260000,
		Open:        decimal.RequireFromString("10749.4"),
		High:        decimal.RequireFromString("10749.7"),
		Low:         decimal.RequireFromString("10749.4"),
		Close:       decimal.RequireFromString("10749.7"),
		Volume:      decimal.RequireFromString("0.04269709"),
		VWAP:        decimal.RequireFromString("10749.67"),
		TradeCount:  2,
		Type:        model.CandleCreated,
	}

	row := w.transform(c)

	if _, err := uuid.Parse(row.ID); err != nil {
		t.Errorf("ID %q is not a valid UUID: %v", row.ID, err)
	}
	if row.Exchange != "kraken" {
		t.Errorf("Exchange = %s, want kraken", row.Exchange)
	}
	if row.Timeframe != "1m" {
		t.Errorf("Timeframe = %s, want 1m", row.Timeframe)
	}
	if row.BucketStart != 1561939200000 {
		t.Errorf("BucketStart = %d, want 1561939200000", row.BucketStart)
	}
	if row.BucketEnd != 1561939260000 {
		t.Errorf("BucketEnd = %d, want 1561939260000", row.BucketEnd)
	}
	if row.Open != "10749.4" {
		t.Errorf("Open = %s, want 10749.4", row.Open)
	}
	if row.Volume != "0.04269709" {
		t.Errorf("Volume = %s, want 0.04269709", row.Volume)
	}
	if row.TradeCount != 2 {
		t.Errorf("TradeCount = %d, want 2", row.TradeCount)
	}
	if row.Type != "created" {
		t.Errorf("Type = %s, want created", row.Type)
	}
}

func TestCandleWriter_TransformUniqueIDs(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := make(chan model.Candle)
	w := NewCandleWriter(cfg, input, nil, nil)

	a := w.transform(model.Candle{})
	b := w.transform(model.Candle{})
	if a.ID == b.ID {
		t.Errorf("two transforms produced the same row ID %q", a.ID)
	}
}

// A cancelled run context must not stop consumption: the engine flushes its
// final candles into the output channel during shutdown, after the signal
// context is already done, and those still have to be batched.
func TestCandleWriter_DrainsAfterContextCancel(t *testing.T) {
	input := make(chan model.Candle, 4)
	w := NewCandleWriter(WriterConfig{BatchSize: 100, FlushInterval: time.Hour}, input, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	for i := 0; i < 3; i++ {
		input <- model.Candle{BucketStart: int64(i) * 60_000}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w.batchMu.Lock()
		n := len(w.batch)
		w.batchMu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batched %d candles after cancel, want 3", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(input) != 0 {
		t.Errorf("%d candles left unread on the input channel", len(input))
	}

	// No database in this test; drop the batch so shutdown flushes nothing.
	w.batchMu.Lock()
	w.batch = w.batch[:0]
	w.batchMu.Unlock()

	close(input)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestCorrectionWriter_Transform(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := make(chan candle.Correction)
	w := NewCorrectionWriter(cfg, input, nil, nil)

	corr := candle.Correction{
		BucketStart: 1561939200000,
		Trade: model.Trade{
			Exchange: "kraken",
			Asset:    "BTC",
			Currency: "USD",
			Time:     1561939203172,
			Side:     model.Sell,
			Price:    decimal.RequireFromString("10749.4"),
			Amount:   decimal.RequireFromString("0.004"),
		},
	}

	row := w.transform(corr)

	if _, err := uuid.Parse(row.ID); err != nil {
		t.Errorf("ID %q is not a valid UUID: %v", row.ID, err)
	}
	if row.BucketStart != 1561939200000 {
		t.Errorf("BucketStart = %d, want 1561939200000", row.BucketStart)
	}
	if row.TradeTime != 1561939203172 {
		t.Errorf("TradeTime = %d, want 1561939203172", row.TradeTime)
	}
	if row.Side != "sell" {
		t.Errorf("Side = %s, want sell", row.Side)
	}
	if row.Price != "10749.4" {
		t.Errorf("Price = %s, want 10749.4", row.Price)
	}
	if row.Amount != "0.004" {
		t.Errorf("Amount = %s, want 0.004", row.Amount)
	}
	if row.RecordedAt == 0 {
		t.Error("RecordedAt not set")
	}
}
