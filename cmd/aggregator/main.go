package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tradestream/candle-data/internal/config"
	"github.com/tradestream/candle-data/internal/database"
	"github.com/tradestream/candle-data/internal/feed"
	"github.com/tradestream/candle-data/internal/metrics"
	"github.com/tradestream/candle-data/internal/pipeline"
	"github.com/tradestream/candle-data/internal/version"
	"github.com/tradestream/candle-data/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/aggregator.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting aggregator",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"timeframe", cfg.Aggregation.Timeframe,
		"rollup_mode", cfg.Aggregation.RollupMode,
		"streams", len(cfg.Feed.Streams),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Aggregation engine
	engine := pipeline.New(cfg.Pipeline(), logger)

	// Writers consume the engine's output channels
	writerCfg := writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval.Std(),
	}
	// The writers outlive the signal context: they keep reading until the
	// engine's outputs close during shutdown, so they run under their own
	// lifecycle context and are stopped only after engine.Close.
	candleWriter := writer.NewCandleWriter(writerCfg, engine.Candles(), pool, logger)
	if err := candleWriter.Start(context.Background()); err != nil {
		logger.Error("failed to start candle writer", "error", err)
		os.Exit(1)
	}
	correctionWriter := writer.NewCorrectionWriter(writerCfg, engine.Corrections(), pool, logger)
	if err := correctionWriter.Start(context.Background()); err != nil {
		logger.Error("failed to start correction writer", "error", err)
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewEngineCollector(engine.Stats),
		metrics.NewWriterCollector("candles", candleWriter.Stats),
		metrics.NewWriterCollector("corrections", correctionWriter.Stats),
	)
	metricsServer := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, logger)
	metricsServer.Start()

	// Live feed
	wsFeed := feed.NewWS(cfg.Feed, engine, logger)
	if err := wsFeed.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}

	logger.Info("aggregator running", "instance_id", cfg.Instance.ID)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop ingestion first, then flush the engine; writers drain the closed
	// output channels before stopping.
	if err := wsFeed.Stop(shutdownCtx); err != nil {
		logger.Warn("feed stop", "error", err)
	}
	if err := engine.Close(shutdownCtx); err != nil {
		logger.Warn("engine close", "error", err)
	}
	if err := candleWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("candle writer stop", "error", err)
	}
	if err := correctionWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("correction writer stop", "error", err)
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Warn("metrics server stop", "error", err)
	}

	stats := engine.Stats()
	logger.Info("aggregator stopped",
		"received", stats.Received,
		"admitted", stats.Admitted,
		"duplicates", stats.Duplicates,
		"late", stats.Late,
		"candles", stats.CandlesEmitted,
	)
}
