package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tradestream/candle-data/internal/pipeline"
	"github.com/tradestream/candle-data/internal/writer"
)

const namespace = "tradestream"

// EngineCollector exposes engine health counters as Prometheus metrics.
// It snapshots the engine on every scrape, so the engine stays free of
// metrics plumbing.
type EngineCollector struct {
	source func() pipeline.Stats

	received    *prometheus.Desc
	admitted    *prometheus.Desc
	rejected    *prometheus.Desc
	duplicates  *prometheus.Desc
	late        *prometheus.Desc
	corrections *prometheus.Desc
	emitted     *prometheus.Desc
	streams     *prometheus.Desc
	queueDepth  *prometheus.Desc
	openBuckets *prometheus.Desc
}

// NewEngineCollector creates a collector reading from the given snapshot
// function, typically Engine.Stats.
func NewEngineCollector(source func() pipeline.Stats) *EngineCollector {
	return &EngineCollector{
		source: source,
		received: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "trades_received_total"),
			"Raw trade ticks offered to the engine.", nil, nil),
		admitted: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "trades_admitted_total"),
			"Trades that passed validation and deduplication.", nil, nil),
		rejected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "trades_rejected_total"),
			"Trades rejected at validation, by reason.", []string{"reason"}, nil),
		duplicates: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "trades_duplicate_total"),
			"Trades dropped as duplicates.", nil, nil),
		late: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "trades_late_total"),
			"Trades that arrived past the reorder window.", nil, nil),
		corrections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "corrections_total"),
			"Late trades whose bucket had already closed.", nil, nil),
		emitted: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "candles_emitted_total"),
			"Closed candles emitted, by timeframe.", []string{"timeframe"}, nil),
		streams: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "streams"),
			"Active stream pipelines.", nil, nil),
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_depth"),
			"Trades waiting in inbound queues.", nil, nil),
		openBuckets: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "open_buckets"),
			"Candle buckets currently accumulating.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.admitted
	ch <- c.rejected
	ch <- c.duplicates
	ch <- c.late
	ch <- c.corrections
	ch <- c.emitted
	ch <- c.streams
	ch <- c.queueDepth
	ch <- c.openBuckets
}

// Collect implements prometheus.Collector.
func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()

	ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(s.Received))
	ch <- prometheus.MustNewConstMetric(c.admitted, prometheus.CounterValue, float64(s.Admitted))
	for reason, n := range s.Rejected {
		ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(n), reason)
	}
	ch <- prometheus.MustNewConstMetric(c.duplicates, prometheus.CounterValue, float64(s.Duplicates))
	ch <- prometheus.MustNewConstMetric(c.late, prometheus.CounterValue, float64(s.Late))
	ch <- prometheus.MustNewConstMetric(c.corrections, prometheus.CounterValue, float64(s.Corrections))
	for tf, n := range s.CandlesByTimeframe {
		ch <- prometheus.MustNewConstMetric(c.emitted, prometheus.CounterValue, float64(n), tf)
	}
	ch <- prometheus.MustNewConstMetric(c.streams, prometheus.GaugeValue, float64(s.Workers))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.openBuckets, prometheus.GaugeValue, float64(s.OpenBuckets))
}

// WriterCollector exposes one batch writer's counters, labelled by writer
// name ("candles", "corrections").
type WriterCollector struct {
	name   string
	source func() writer.WriterMetrics

	inserts   *prometheus.Desc
	conflicts *prometheus.Desc
	errors    *prometheus.Desc
	flushes   *prometheus.Desc
}

// NewWriterCollector creates a collector reading from the given snapshot
// function, typically CandleWriter.Stats.
func NewWriterCollector(name string, source func() writer.WriterMetrics) *WriterCollector {
	labels := prometheus.Labels{"writer": name}
	return &WriterCollector{
		name:   name,
		source: source,
		inserts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "writer", "inserts_total"),
			"Rows inserted.", nil, labels),
		conflicts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "writer", "conflicts_total"),
			"Rows skipped on conflict.", nil, labels),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "writer", "errors_total"),
			"Failed batch inserts.", nil, labels),
		flushes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "writer", "flushes_total"),
			"Batch flushes.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *WriterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inserts
	ch <- c.conflicts
	ch <- c.errors
	ch <- c.flushes
}

// Collect implements prometheus.Collector.
func (c *WriterCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.source()

	ch <- prometheus.MustNewConstMetric(c.inserts, prometheus.CounterValue, float64(m.Inserts))
	ch <- prometheus.MustNewConstMetric(c.conflicts, prometheus.CounterValue, float64(m.Conflicts))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(m.Errors))
	ch <- prometheus.MustNewConstMetric(c.flushes, prometheus.CounterValue, float64(m.Flushes))
}
