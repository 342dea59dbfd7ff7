package config

import (
	"github.com/tradestream/candle-data/internal/pipeline"
	"github.com/tradestream/candle-data/internal/timeframe"
)

// AggregatorConfig is the root configuration for an aggregator instance.
type AggregatorConfig struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Feed        FeedConfig        `yaml:"feed"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Database    DatabaseConfig    `yaml:"database"`
	Writers     WritersConfig     `yaml:"writers"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// InstanceConfig identifies this aggregator.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// FeedConfig holds trade feed settings.
type FeedConfig struct {
	WSURL              string       `yaml:"ws_url"`
	Streams            []StreamSpec `yaml:"streams"`
	ReconnectBaseDelay Duration     `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  Duration     `yaml:"reconnect_max_delay"`
	PingInterval       Duration     `yaml:"ping_interval"`
	ReadTimeout        Duration     `yaml:"read_timeout"`
}

// StreamSpec names one trade stream to subscribe to.
type StreamSpec struct {
	Exchange string `yaml:"exchange"`
	Asset    string `yaml:"asset"`
	Currency string `yaml:"currency"`
}

// AggregationConfig holds candle-building settings.
type AggregationConfig struct {
	// Timeframe is the base candle timeframe ("1m", "5m", ...).
	Timeframe string `yaml:"timeframe"`

	// BucketWidthMs overrides Timeframe with an arbitrary bucket width.
	// Registry timeframes cover production use; this exists for replay
	// experiments (e.g. 10s buckets). Rollups require a registry base.
	BucketWidthMs int64 `yaml:"bucket_width_ms"`

	// MaxOutOfOrderDelay bounds how far trades may arrive out of order and
	// still be resequenced into event-time order.
	MaxOutOfOrderDelay Duration `yaml:"max_out_of_order_delay"`

	// Lateness extends how long a bucket stays open past its end.
	Lateness Duration `yaml:"lateness"`

	// DedupWindowMultiplier sizes the duplicate fingerprint window as
	// bucket width times (1 + multiplier).
	DedupWindowMultiplier int `yaml:"dedup_window_multiplier"`

	// RollupMode is "per-exchange" or "merged".
	RollupMode string `yaml:"rollup_mode"`

	// RollupTimeframes lists higher timeframes derived from closed base
	// candles on the same output stream.
	RollupTimeframes []string `yaml:"rollup_timeframes"`

	// GapFill emits previous-close placeholder candles for empty buckets.
	GapFill bool `yaml:"gap_fill"`

	QueueSize        int `yaml:"queue_size"`
	CandleBuffer     int `yaml:"candle_buffer"`
	CorrectionBuffer int `yaml:"correction_buffer"`
}

// DatabaseConfig holds the TimescaleDB connection for candle storage.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
	BufferSize    int      `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// BucketWidth resolves the effective bucket width in milliseconds.
func (a AggregationConfig) BucketWidth() int64 {
	if a.BucketWidthMs > 0 {
		return a.BucketWidthMs
	}
	tf, err := timeframe.FromString(a.Timeframe)
	if err != nil {
		return 0
	}
	return tf.WidthMs
}

// Pipeline translates the aggregation section into engine options. Call only
// after Validate: the timeframe label has been checked against the registry.
func (c *AggregatorConfig) Pipeline() pipeline.Config {
	return pipeline.Config{
		BucketWidthMs:         c.Aggregation.BucketWidth(),
		MaxOutOfOrderDelayMs:  c.Aggregation.MaxOutOfOrderDelay.Milliseconds(),
		LatenessMs:            c.Aggregation.Lateness.Milliseconds(),
		DedupWindowMultiplier: c.Aggregation.DedupWindowMultiplier,
		RollupMode:            c.Aggregation.RollupMode,
		RollupTimeframes:      c.Aggregation.RollupTimeframes,
		GapFill:               c.Aggregation.GapFill,
		QueueSize:             c.Aggregation.QueueSize,
		CandleBuffer:          c.Aggregation.CandleBuffer,
		CorrectionBuffer:      c.Aggregation.CorrectionBuffer,
	}
}
