package config

import (
	"errors"
	"fmt"

	"github.com/tradestream/candle-data/internal/pipeline"
	"github.com/tradestream/candle-data/internal/timeframe"
)

// Validate checks that all required fields are set and values are valid.
func (c *AggregatorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Feed.Streams) == 0 {
		return errors.New("feed.streams must list at least one stream")
	}
	for i, s := range c.Feed.Streams {
		if s.Exchange == "" || s.Asset == "" || s.Currency == "" {
			return fmt.Errorf("feed.streams[%d] must set exchange, asset and currency", i)
		}
	}

	if c.Aggregation.BucketWidthMs < 0 {
		return errors.New("aggregation.bucket_width_ms must be > 0")
	}
	if c.Aggregation.BucketWidthMs == 0 {
		if _, err := timeframe.FromString(c.Aggregation.Timeframe); err != nil {
			return fmt.Errorf("aggregation.timeframe: %w", err)
		}
	}
	baseWidth := c.Aggregation.BucketWidth()

	switch c.Aggregation.RollupMode {
	case pipeline.RollupPerExchange, pipeline.RollupMerged:
	default:
		return fmt.Errorf("aggregation.rollup_mode must be %q or %q, got %q",
			pipeline.RollupPerExchange, pipeline.RollupMerged, c.Aggregation.RollupMode)
	}

	for _, label := range c.Aggregation.RollupTimeframes {
		tf, err := timeframe.FromString(label)
		if err != nil {
			return fmt.Errorf("aggregation.rollup_timeframes: %w", err)
		}
		if tf.WidthMs <= baseWidth || tf.WidthMs%baseWidth != 0 {
			return fmt.Errorf("aggregation.rollup_timeframes: %q is not a multiple of base timeframe %q",
				label, timeframe.Label(baseWidth))
		}
	}

	if c.Aggregation.MaxOutOfOrderDelay < 0 {
		return errors.New("aggregation.max_out_of_order_delay must be >= 0")
	}
	if c.Aggregation.Lateness < 0 {
		return errors.New("aggregation.lateness must be >= 0")
	}
	if c.Aggregation.QueueSize < 1 {
		return errors.New("aggregation.queue_size must be >= 1")
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
