package config

import (
	"time"

	"github.com/tradestream/candle-data/internal/pipeline"
)

// Default values for optional configuration fields.
const (
	DefaultTimeframe             = "1m"
	DefaultMaxOutOfOrderDelay    = Duration(5 * time.Second)
	DefaultLateness              = Duration(10 * time.Second)
	DefaultDedupWindowMultiplier = 1
	DefaultRollupMode            = pipeline.RollupPerExchange
	DefaultQueueSize             = 10000
	DefaultCandleBuffer          = 1024
	DefaultCorrectionBuffer      = 256
	DefaultReconnectBaseDelay    = Duration(1 * time.Second)
	DefaultReconnectMaxDelay     = Duration(60 * time.Second)
	DefaultPingInterval          = Duration(15 * time.Second)
	DefaultReadTimeout           = Duration(30 * time.Second)
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 10
	DefaultMinConns              = 2
	DefaultBatchSize             = 1000
	DefaultFlushInterval         = Duration(1 * time.Second)
	DefaultBufferSize            = 10000
	DefaultMetricsPort           = 9090
	DefaultMetricsPath           = "/metrics"
)

func (c *AggregatorConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.ReadTimeout == 0 {
		c.Feed.ReadTimeout = DefaultReadTimeout
	}

	// Aggregation defaults
	if c.Aggregation.Timeframe == "" {
		c.Aggregation.Timeframe = DefaultTimeframe
	}
	if c.Aggregation.MaxOutOfOrderDelay == 0 {
		c.Aggregation.MaxOutOfOrderDelay = DefaultMaxOutOfOrderDelay
	}
	if c.Aggregation.Lateness == 0 {
		c.Aggregation.Lateness = DefaultLateness
	}
	if c.Aggregation.DedupWindowMultiplier == 0 {
		c.Aggregation.DedupWindowMultiplier = DefaultDedupWindowMultiplier
	}
	if c.Aggregation.RollupMode == "" {
		c.Aggregation.RollupMode = DefaultRollupMode
	}
	if c.Aggregation.QueueSize == 0 {
		c.Aggregation.QueueSize = DefaultQueueSize
	}
	if c.Aggregation.CandleBuffer == 0 {
		c.Aggregation.CandleBuffer = DefaultCandleBuffer
	}
	if c.Aggregation.CorrectionBuffer == 0 {
		c.Aggregation.CorrectionBuffer = DefaultCorrectionBuffer
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
