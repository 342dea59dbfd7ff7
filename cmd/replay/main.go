package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tradestream/candle-data/internal/feed"
	"github.com/tradestream/candle-data/internal/pipeline"
	"github.com/tradestream/candle-data/internal/timeframe"
	"github.com/tradestream/candle-data/internal/version"
)

// replay feeds a trade fixture through a fresh engine and prints the closed
// candles as NDJSON on stdout. Useful for backfills and for inspecting what
// the aggregator would build from a captured feed.
func main() {
	file := flag.String("file", "", "trade fixture (JSON array or NDJSON)")
	tf := flag.String("timeframe", "1m", "base candle timeframe")
	merged := flag.Bool("merged", false, "merge all venues into one candle stream")
	rollups := flag.String("rollups", "", `comma-separated higher timeframes (e.g. 5m,1h), or "all"`)
	gapFill := flag.Bool("gap-fill", false, "emit previous-close candles for empty buckets")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *file == "" {
		logger.Error("missing -file")
		flag.Usage()
		os.Exit(2)
	}

	base, err := timeframe.FromString(*tf)
	if err != nil {
		logger.Error("bad timeframe", "error", err)
		os.Exit(2)
	}

	cfg := pipeline.DefaultConfig()
	cfg.BucketWidthMs = base.WidthMs
	cfg.GapFill = *gapFill
	if *merged {
		cfg.RollupMode = pipeline.RollupMerged
	}
	switch *rollups {
	case "":
	case "all":
		for _, tf := range timeframe.Rollups(base.WidthMs) {
			cfg.RollupTimeframes = append(cfg.RollupTimeframes, tf.Str)
		}
	default:
		cfg.RollupTimeframes = strings.Split(*rollups, ",")
		for _, label := range cfg.RollupTimeframes {
			if _, err := timeframe.FromString(label); err != nil {
				logger.Error("bad rollup timeframe", "error", err)
				os.Exit(2)
			}
		}
	}

	engine := pipeline.New(cfg, logger)

	// Print candles as they close; corrections go to stderr.
	enc := json.NewEncoder(os.Stdout)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for c := range engine.Candles() {
			if err := enc.Encode(c); err != nil {
				logger.Error("encode candle", "error", err)
			}
		}
	}()
	go func() {
		for corr := range engine.Corrections() {
			logger.Warn("late trade for closed bucket",
				"bucket_start", corr.BucketStart,
				"trade_time", corr.Trade.Time,
			)
		}
	}()

	ctx := context.Background()
	start := time.Now()

	n, err := feed.ReplayFile(ctx, *file, engine)
	if err != nil {
		logger.Error("replay failed", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := engine.Close(closeCtx); err != nil {
		logger.Error("engine close", "error", err)
	}
	<-printed

	stats := engine.Stats()
	logger.Info("replay finished",
		"version", version.Version,
		"file", *file,
		"ticks", n,
		"admitted", stats.Admitted,
		"duplicates", stats.Duplicates,
		"late", stats.Late,
		"candles", stats.CandlesEmitted,
		"duration", time.Since(start),
	)
}
