package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tradestream/candle-data/internal/pipeline"
	"github.com/tradestream/candle-data/internal/writer"
)

func TestEngineCollector(t *testing.T) {
	stats := pipeline.Stats{
		Received:       10,
		Admitted:       7,
		Rejected:       map[string]int64{"unknown_side": 2},
		Duplicates:     1,
		Late:           3,
		Corrections:    1,
		CandlesEmitted: 4,
		CandlesByTimeframe: map[string]int64{
			"1m": 3,
			"5m": 1,
		},
		Workers:     2,
		QueueDepth:  5,
		OpenBuckets: 2,
	}
	c := NewEngineCollector(func() pipeline.Stats { return stats })

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	expected := `
# HELP tradestream_trades_received_total Raw trade ticks offered to the engine.
# TYPE tradestream_trades_received_total counter
tradestream_trades_received_total 10
# HELP tradestream_trades_rejected_total Trades rejected at validation, by reason.
# TYPE tradestream_trades_rejected_total counter
tradestream_trades_rejected_total{reason="unknown_side"} 2
# HELP tradestream_candles_emitted_total Closed candles emitted, by timeframe.
# TYPE tradestream_candles_emitted_total counter
tradestream_candles_emitted_total{timeframe="1m"} 3
tradestream_candles_emitted_total{timeframe="5m"} 1
# HELP tradestream_open_buckets Candle buckets currently accumulating.
# TYPE tradestream_open_buckets gauge
tradestream_open_buckets 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tradestream_trades_received_total",
		"tradestream_trades_rejected_total",
		"tradestream_candles_emitted_total",
		"tradestream_open_buckets",
	)
	if err != nil {
		t.Errorf("unexpected metric output: %v", err)
	}

	if got := testutil.CollectAndCount(c); got != 11 {
		t.Errorf("collected %d metrics, want 11", got)
	}
}

func TestWriterCollector(t *testing.T) {
	m := writer.WriterMetrics{Inserts: 100, Conflicts: 3, Errors: 1, Flushes: 9}
	c := NewWriterCollector("candles", func() writer.WriterMetrics { return m })

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	expected := `
# HELP tradestream_writer_inserts_total Rows inserted.
# TYPE tradestream_writer_inserts_total counter
tradestream_writer_inserts_total{writer="candles"} 100
# HELP tradestream_writer_errors_total Failed batch inserts.
# TYPE tradestream_writer_errors_total counter
tradestream_writer_errors_total{writer="candles"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tradestream_writer_inserts_total",
		"tradestream_writer_errors_total",
	)
	if err != nil {
		t.Errorf("unexpected metric output: %v", err)
	}
}

func TestCollectorsShareRegistry(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	engine := NewEngineCollector(func() pipeline.Stats {
		return pipeline.Stats{Rejected: map[string]int64{}}
	})
	candles := NewWriterCollector("candles", func() writer.WriterMetrics { return writer.WriterMetrics{} })
	corrections := NewWriterCollector("corrections", func() writer.WriterMetrics { return writer.WriterMetrics{} })

	for _, c := range []prometheus.Collector{engine, candles, corrections} {
		if err := reg.Register(c); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	if _, err := reg.Gather(); err != nil {
		t.Errorf("Gather failed: %v", err)
	}
}
