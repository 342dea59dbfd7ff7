package writer

import (
	"time"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 1 * time.Second,
	}
}

// candleRow represents a row to be inserted into the candles table.
type candleRow struct {
	ID          string // UUID
	Exchange    string
	Asset       string
	Currency    string
	Timeframe   string
	BucketStart int64 // Milliseconds
	BucketEnd   int64 // Milliseconds
	Open        string // NUMERIC text
	High        string
	Low         string
	Close       string
	Volume      string
	VWAP        string
	TradeCount  int64
	Type        string // created | previous | loaded
}

// correctionRow represents a row for the candle_corrections table.
type correctionRow struct {
	ID          string // UUID
	Exchange    string
	Asset       string
	Currency    string
	BucketStart int64 // Milliseconds
	TradeTime   int64 // Milliseconds
	Side        string
	Price       string // NUMERIC text
	Amount      string
	RecordedAt  int64 // Microseconds
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
