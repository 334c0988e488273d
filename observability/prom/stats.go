package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/kvcache"
)

// StatsSource is implemented by *kvcache.Manager.
type StatsSource interface {
	Stats() kvcache.Stats
}

// StatsCollector exports a snapshot of Manager.Stats on every scrape.
type StatsCollector struct {
	src StatsSource

	used          *prometheus.Desc
	allowed       *prometheus.Desc
	entries       *prometheus.Desc
	hitRate       *prometheus.Desc
	windowHitRate *prometheus.Desc
	hits          *prometheus.Desc
	misses        *prometheus.Desc
	evictions     *prometheus.Desc
	migrations    *prometheus.Desc
	buckets       *prometheus.Desc
	generations   *prometheus.Desc

	budget   *prometheus.Desc
	reserved *prometheus.Desc
	total    *prometheus.Desc
	closing  *prometheus.Desc
	term     *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector returns a collector for src. namespace prefixes every
// metric name.
func NewStatsCollector(namespace string, src StatsSource) *StatsCollector {
	perCache := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, []string{"cache"}, nil)
	}
	global := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}

	return &StatsCollector{
		src: src,

		used:          perCache("used_bytes", "Bytes charged to the cache."),
		allowed:       perCache("allowed_bytes", "Current quota of the cache."),
		entries:       perCache("entries", "Number of entries in the cache."),
		hitRate:       perCache("hit_rate", "Lifetime lookup hit rate."),
		windowHitRate: perCache("window_hit_rate", "Lookup hit rate of the last rebalance window."),
		hits:          perCache("hits_total", "Lookup hits."),
		misses:        perCache("misses_total", "Lookup misses."),
		evictions:     perCache("evictions_total", "Entries evicted to make room."),
		migrations:    perCache("migrations_total", "Completed table migrations."),
		buckets:       perCache("buckets", "Size of the current table."),
		generations:   perCache("generations", "Live table generations, including draining ones."),

		budget:   global("memory_budget_bytes", "Memory budget shared by all caches."),
		reserved: global("reserved_bytes", "Sum of all cache quotas."),
		total:    global("used_bytes", "Bytes charged across all caches."),
		closing:  global("closing_caches", "Closed caches waiting for reclamation."),
		term:     global("term", "Current term of the term tracker."),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.used, c.allowed, c.entries, c.hitRate, c.windowHitRate,
		c.hits, c.misses, c.evictions, c.migrations, c.buckets, c.generations,
		c.budget, c.reserved, c.total, c.closing, c.term,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	for _, cs := range s.Caches {
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, cs.Name)
		}
		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), cs.Name)
		}

		gauge(c.used, float64(cs.UsedBytes))
		gauge(c.allowed, float64(cs.AllowedBytes))
		gauge(c.entries, float64(cs.Entries))
		gauge(c.hitRate, cs.HitRate)
		gauge(c.windowHitRate, cs.WindowHitRate)
		gauge(c.buckets, float64(cs.Buckets))
		gauge(c.generations, float64(cs.Generations))
		counter(c.hits, cs.Hits)
		counter(c.misses, cs.Misses)
		counter(c.evictions, cs.Evictions)
		counter(c.migrations, cs.Migrations)
	}

	ch <- prometheus.MustNewConstMetric(c.budget, prometheus.GaugeValue, float64(s.TotalBudget))
	ch <- prometheus.MustNewConstMetric(c.reserved, prometheus.GaugeValue, float64(s.TotalReserved))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalUsed))
	ch <- prometheus.MustNewConstMetric(c.closing, prometheus.GaugeValue, float64(s.Closing))
	ch <- prometheus.MustNewConstMetric(c.term, prometheus.CounterValue, float64(s.Term))
}
