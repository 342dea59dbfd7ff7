package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tradestream/candle-data/internal/pipeline"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-aggregator
  az: us-east-1a
feed:
  ws_url: wss://stream.example.com/trades
  streams:
    - exchange: kraken
      asset: BTC
      currency: USD
aggregation:
  timeframe: 1m
  max_out_of_order_delay: 5s
  lateness: 10000
  rollup_mode: merged
database:
  timescale:
    host: localhost
    port: 5432
    name: test_candles
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-aggregator" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-aggregator")
	}
	if cfg.Feed.WSURL != "wss://stream.example.com/trades" {
		t.Errorf("Feed.WSURL = %q, want %q", cfg.Feed.WSURL, "wss://stream.example.com/trades")
	}
	if len(cfg.Feed.Streams) != 1 || cfg.Feed.Streams[0].Exchange != "kraken" {
		t.Errorf("Feed.Streams = %+v, want one kraken stream", cfg.Feed.Streams)
	}
	if cfg.Aggregation.RollupMode != pipeline.RollupMerged {
		t.Errorf("Aggregation.RollupMode = %q, want %q", cfg.Aggregation.RollupMode, pipeline.RollupMerged)
	}
	// Duration string and bare-millisecond forms both decode.
	if cfg.Aggregation.MaxOutOfOrderDelay.Std() != 5*time.Second {
		t.Errorf("MaxOutOfOrderDelay = %v, want 5s", cfg.Aggregation.MaxOutOfOrderDelay)
	}
	if cfg.Aggregation.Lateness.Std() != 10*time.Second {
		t.Errorf("Lateness = %v, want 10s", cfg.Aggregation.Lateness)
	}
	if cfg.Database.Timescale.Host != "localhost" {
		t.Errorf("Database.Timescale.Host = %q, want %q", cfg.Database.Timescale.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-aggregator
database:
  timescale:
    host: localhost
    name: test_candles
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Timescale.Password != "secret123" {
		t.Errorf("Database.Timescale.Password = %q, want %q", cfg.Database.Timescale.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-aggregator
database:
  timescale:
    host: localhost
    name: test_candles
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Aggregation.Timeframe != DefaultTimeframe {
		t.Errorf("Aggregation.Timeframe = %q, want default %q", cfg.Aggregation.Timeframe, DefaultTimeframe)
	}
	if cfg.Aggregation.MaxOutOfOrderDelay != DefaultMaxOutOfOrderDelay {
		t.Errorf("Aggregation.MaxOutOfOrderDelay = %v, want default %v",
			cfg.Aggregation.MaxOutOfOrderDelay, DefaultMaxOutOfOrderDelay)
	}
	if cfg.Aggregation.RollupMode != DefaultRollupMode {
		t.Errorf("Aggregation.RollupMode = %q, want default %q", cfg.Aggregation.RollupMode, DefaultRollupMode)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Database.Timescale.Port = %d, want default %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
	if cfg.Database.Timescale.MaxConns != DefaultMaxConns {
		t.Errorf("Database.Timescale.MaxConns = %d, want default %d", cfg.Database.Timescale.MaxConns, DefaultMaxConns)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func validConfig() AggregatorConfig {
	return AggregatorConfig{
		Instance: InstanceConfig{ID: "test"},
		Feed: FeedConfig{
			Streams: []StreamSpec{{Exchange: "kraken", Asset: "BTC", Currency: "USD"}},
		},
		Aggregation: AggregationConfig{
			Timeframe:  "1m",
			RollupMode: pipeline.RollupPerExchange,
			QueueSize:  100,
		},
		Database: DatabaseConfig{
			Timescale: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2},
		},
		Writers: WritersConfig{BatchSize: 1000, FlushInterval: Duration(time.Second), BufferSize: 10000},
		Metrics: MetricsConfig{Port: 9090},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AggregatorConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *AggregatorConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *AggregatorConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "no streams",
			mutate:  func(c *AggregatorConfig) { c.Feed.Streams = nil },
			wantErr: "feed.streams must list at least one stream",
		},
		{
			name:    "stream missing currency",
			mutate:  func(c *AggregatorConfig) { c.Feed.Streams[0].Currency = "" },
			wantErr: "feed.streams[0] must set exchange, asset and currency",
		},
		{
			name:    "unknown timeframe",
			mutate:  func(c *AggregatorConfig) { c.Aggregation.Timeframe = "7m" },
			wantErr: `aggregation.timeframe: invalid timeframe "7m"`,
		},
		{
			name:    "negative bucket width",
			mutate:  func(c *AggregatorConfig) { c.Aggregation.BucketWidthMs = -1 },
			wantErr: "aggregation.bucket_width_ms must be > 0",
		},
		{
			name: "bucket width override skips timeframe check",
			mutate: func(c *AggregatorConfig) {
				c.Aggregation.Timeframe = ""
				c.Aggregation.BucketWidthMs = 10_000
			},
			wantErr: "",
		},
		{
			name: "rollup against overridden bucket width",
			mutate: func(c *AggregatorConfig) {
				c.Aggregation.BucketWidthMs = 10_000
				c.Aggregation.RollupTimeframes = []string{"1m"}
			},
			wantErr: "",
		},
		{
			name:    "bad rollup mode",
			mutate:  func(c *AggregatorConfig) { c.Aggregation.RollupMode = "global" },
			wantErr: `aggregation.rollup_mode must be "per-exchange" or "merged", got "global"`,
		},
		{
			name:    "rollup timeframes that divide evenly",
			mutate:  func(c *AggregatorConfig) { c.Aggregation.Timeframe = "30m"; c.Aggregation.RollupTimeframes = []string{"1h", "4h"} },
			wantErr: "",
		},
		{
			name:    "rollup timeframe not a multiple",
			mutate:  func(c *AggregatorConfig) { c.Aggregation.Timeframe = "8h"; c.Aggregation.RollupTimeframes = []string{"12h"} },
			wantErr: `aggregation.rollup_timeframes: "12h" is not a multiple of base timeframe "8h"`,
		},
		{
			name:    "rollup timeframe below base",
			mutate:  func(c *AggregatorConfig) { c.Aggregation.Timeframe = "1h"; c.Aggregation.RollupTimeframes = []string{"5m"} },
			wantErr: `aggregation.rollup_timeframes: "5m" is not a multiple of base timeframe "1h"`,
		},
		{
			name:    "missing timescale host",
			mutate:  func(c *AggregatorConfig) { c.Database.Timescale.Host = "" },
			wantErr: "database.timescale.host is required",
		},
		{
			name:    "missing timescale password",
			mutate:  func(c *AggregatorConfig) { c.Database.Timescale.Password = "" },
			wantErr: "database.timescale.password is required",
		},
		{
			name:    "min_conns exceeds max_conns",
			mutate:  func(c *AggregatorConfig) { c.Database.Timescale.MinConns = 20 },
			wantErr: "database.timescale.min_conns (20) cannot exceed max_conns (10)",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *AggregatorConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestPipelineTranslation(t *testing.T) {
	cfg := validConfig()
	cfg.Aggregation.Timeframe = "5m"
	cfg.Aggregation.MaxOutOfOrderDelay = Duration(2 * time.Second)
	cfg.Aggregation.Lateness = Duration(3 * time.Second)
	cfg.Aggregation.RollupTimeframes = []string{"15m"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	p := cfg.Pipeline()
	if p.BucketWidthMs != 300_000 {
		t.Errorf("BucketWidthMs = %d, want 300000", p.BucketWidthMs)
	}
	if p.MaxOutOfOrderDelayMs != 2_000 {
		t.Errorf("MaxOutOfOrderDelayMs = %d, want 2000", p.MaxOutOfOrderDelayMs)
	}
	if p.LatenessMs != 3_000 {
		t.Errorf("LatenessMs = %d, want 3000", p.LatenessMs)
	}
	if len(p.RollupTimeframes) != 1 || p.RollupTimeframes[0] != "15m" {
		t.Errorf("RollupTimeframes = %v, want [15m]", p.RollupTimeframes)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
