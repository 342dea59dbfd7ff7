package pipeline

import (
	"errors"
)

// Rollup modes.
const (
	// RollupPerExchange keeps one candle stream per venue.
	RollupPerExchange = "per-exchange"

	// RollupMerged folds all venues into one synthetic candle stream per
	// (asset, currency).
	RollupMerged = "merged"
)

// Errors returned by the ingestion API.
var (
	// ErrOverloaded signals a full inbound queue on the non-blocking path.
	// Recoverable: the caller may retry.
	ErrOverloaded = errors.New("inbound queue full")

	// ErrClosed is returned once the engine has been closed.
	ErrClosed = errors.New("engine closed")
)

// Config holds the engine's recognized options.
type Config struct {
	// BucketWidthMs is the candle bucket width.
	BucketWidthMs int64

	// MaxOutOfOrderDelayMs bounds how far trades may arrive out of order
	// and still be resequenced.
	MaxOutOfOrderDelayMs int64

	// LatenessMs extends how long a bucket stays open past its end before
	// it closes.
	LatenessMs int64

	// DedupWindowMultiplier sizes the duplicate fingerprint window:
	// bucket width times (1 + multiplier).
	DedupWindowMultiplier int

	// RollupMode is RollupPerExchange or RollupMerged.
	RollupMode string

	// RollupTimeframes batches closed base candles into these higher
	// registry timeframes ("5m", "1h", ...) on the same output stream.
	RollupTimeframes []string

	// GapFill emits previous-close placeholders for empty buckets.
	GapFill bool

	// QueueSize bounds each stream's inbound queue.
	QueueSize int

	// CandleBuffer sizes the shared candle output channel.
	CandleBuffer int

	// CorrectionBuffer sizes the correction side channel.
	CorrectionBuffer int
}

// DefaultConfig returns default engine options.
func DefaultConfig() Config {
	return Config{
		BucketWidthMs:         60_000,
		MaxOutOfOrderDelayMs:  5_000,
		LatenessMs:            10_000,
		DedupWindowMultiplier: 1,
		RollupMode:            RollupPerExchange,
		QueueSize:             10_000,
		CandleBuffer:          1_024,
		CorrectionBuffer:      256,
	}
}

// Stats is a snapshot of engine health counters. Callers observe rejected /
// duplicate / late trades here rather than through errors propagating out of
// the pipeline.
type Stats struct {
	Received           int64
	Admitted           int64
	Rejected           map[string]int64 // By rejection reason
	Duplicates         int64
	Late               int64
	Corrections        int64
	CandlesEmitted     int64
	CandlesByTimeframe map[string]int64 // By candle timeframe label
	Workers            int
	QueueDepth         int
	OpenBuckets        int
}
