package kvcache

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/kvcache/internal/manager"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implementations must be safe for concurrent use and must not block: they
// are called on the lookup and insert paths.
//
// For Prometheus, see the observability/prom package, which exports gauges
// from Manager.Stats instead of per-operation events.
type MetricsCollector interface {
	// RecordLookup is called after each lookup.
	RecordLookup(cache string, hit bool)

	// RecordInsert is called after each insert.
	RecordInsert(cache string, result InsertResult)

	// RecordEviction is called for every entry evicted to make room.
	RecordEviction(cache string, bytes int64)

	// RecordMigration is called when a table migration has copied its last
	// bucket. buckets is the size of the new table.
	RecordMigration(cache string, duration time.Duration, buckets uint64)

	// RecordRebalance is called after each rebalance tick with the number of
	// caches whose quota changed.
	RecordRebalance(duration time.Duration, changed int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLookup(string, bool)                     {}
func (NoopMetricsCollector) RecordInsert(string, InsertResult)             {}
func (NoopMetricsCollector) RecordEviction(string, int64)                  {}
func (NoopMetricsCollector) RecordMigration(string, time.Duration, uint64) {}
func (NoopMetricsCollector) RecordRebalance(time.Duration, int)            {}

// BasicMetricsCollector provides simple in-memory metrics collection
// across all caches.
type BasicMetricsCollector struct {
	LookupCount         atomic.Int64
	LookupHits          atomic.Int64
	InsertCount         atomic.Int64
	InsertRejected      atomic.Int64
	EvictionCount       atomic.Int64
	EvictedBytes        atomic.Int64
	MigrationCount      atomic.Int64
	MigrationTotalNanos atomic.Int64
	RebalanceCount      atomic.Int64
	RebalanceChanged    atomic.Int64
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(_ string, hit bool) {
	b.LookupCount.Add(1)
	if hit {
		b.LookupHits.Add(1)
	}
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(_ string, result InsertResult) {
	b.InsertCount.Add(1)
	if result != Accepted {
		b.InsertRejected.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(_ string, bytes int64) {
	b.EvictionCount.Add(1)
	b.EvictedBytes.Add(bytes)
}

// RecordMigration implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMigration(_ string, duration time.Duration, _ uint64) {
	b.MigrationCount.Add(1)
	b.MigrationTotalNanos.Add(duration.Nanoseconds())
}

// RecordRebalance implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebalance(_ time.Duration, changed int) {
	b.RebalanceCount.Add(1)
	b.RebalanceChanged.Add(int64(changed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		LookupCount:      b.LookupCount.Load(),
		LookupHits:       b.LookupHits.Load(),
		InsertCount:      b.InsertCount.Load(),
		InsertRejected:   b.InsertRejected.Load(),
		EvictionCount:    b.EvictionCount.Load(),
		EvictedBytes:     b.EvictedBytes.Load(),
		MigrationCount:   b.MigrationCount.Load(),
		RebalanceCount:   b.RebalanceCount.Load(),
		RebalanceChanged: b.RebalanceChanged.Load(),
	}
	if s.LookupCount > 0 {
		s.HitRate = float64(s.LookupHits) / float64(s.LookupCount)
	}
	if s.MigrationCount > 0 {
		s.MigrationAvgNanos = b.MigrationTotalNanos.Load() / s.MigrationCount
	}
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LookupCount       int64
	LookupHits        int64
	HitRate           float64
	InsertCount       int64
	InsertRejected    int64
	EvictionCount     int64
	EvictedBytes      int64
	MigrationCount    int64
	MigrationAvgNanos int64
	RebalanceCount    int64
	RebalanceChanged  int64
}

// collectorObserver forwards manager events to a MetricsCollector.
type collectorObserver struct {
	mc MetricsCollector
}

var _ manager.Observer = collectorObserver{}

func (o collectorObserver) OnLookup(cache string, hit bool) {
	o.mc.RecordLookup(cache, hit)
}

func (o collectorObserver) OnInsert(cache string, result InsertResult) {
	o.mc.RecordInsert(cache, result)
}

func (o collectorObserver) OnEviction(cache string, bytes int64) {
	o.mc.RecordEviction(cache, bytes)
}

func (o collectorObserver) OnMigration(cache string, duration time.Duration, buckets uint64) {
	o.mc.RecordMigration(cache, duration, buckets)
}

func (o collectorObserver) OnRebalance(duration time.Duration, changed int) {
	o.mc.RecordRebalance(duration, changed)
}
