package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/kvcache"
)

// Metrics records kvcache events into Prometheus counters and histograms.
// Register it with a prometheus.Registerer and pass it to
// kvcache.WithMetricsCollector.
type Metrics struct {
	lookups            *prometheus.CounterVec
	inserts            *prometheus.CounterVec
	evictedBytes       *prometheus.CounterVec
	migrationDuration  *prometheus.HistogramVec
	rebalanceDuration  prometheus.Histogram
	rebalanceChanged   prometheus.Counter
	migrationTableSize *prometheus.GaugeVec
}

var (
	_ kvcache.MetricsCollector = (*Metrics)(nil)
	_ prometheus.Collector     = (*Metrics)(nil)
)

// NewMetrics creates unregistered event metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"cache", "result"}),
		inserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inserts_total",
			Help:      "Cache inserts by result.",
		}, []string{"cache", "result"}),
		evictedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_bytes_total",
			Help:      "Bytes released by eviction.",
		}, []string{"cache"}),
		migrationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Time from migration start until the last bucket was copied.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"cache"}),
		rebalanceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rebalance_duration_seconds",
			Help:      "Duration of rebalance ticks.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		rebalanceChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalance_quota_changes_total",
			Help:      "Quota changes applied by the rebalancer.",
		}),
		migrationTableSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "migration_target_buckets",
			Help:      "Table size of the most recent completed migration.",
		}, []string{"cache"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.lookups, m.inserts, m.evictedBytes,
		m.migrationDuration, m.rebalanceDuration, m.rebalanceChanged,
		m.migrationTableSize,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordLookup implements kvcache.MetricsCollector.
func (m *Metrics) RecordLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(cache, result).Inc()
}

// RecordInsert implements kvcache.MetricsCollector.
func (m *Metrics) RecordInsert(cache string, result kvcache.InsertResult) {
	m.inserts.WithLabelValues(cache, result.String()).Inc()
}

// RecordEviction implements kvcache.MetricsCollector.
func (m *Metrics) RecordEviction(cache string, bytes int64) {
	m.evictedBytes.WithLabelValues(cache).Add(float64(bytes))
}

// RecordMigration implements kvcache.MetricsCollector.
func (m *Metrics) RecordMigration(cache string, duration time.Duration, buckets uint64) {
	m.migrationDuration.WithLabelValues(cache).Observe(duration.Seconds())
	m.migrationTableSize.WithLabelValues(cache).Set(float64(buckets))
}

// RecordRebalance implements kvcache.MetricsCollector.
func (m *Metrics) RecordRebalance(duration time.Duration, changed int) {
	m.rebalanceDuration.Observe(duration.Seconds())
	m.rebalanceChanged.Add(float64(changed))
}
