// Package prom exports kvcache state and events to Prometheus.
//
// StatsCollector is a prometheus.Collector that reads Manager.Stats on every
// scrape. Metrics is a kvcache.MetricsCollector that records per-operation
// events into counters and histograms.
//
//	reg := prometheus.NewRegistry()
//	events := prom.NewMetrics("kvcache")
//	m, _ := kvcache.New(cfg, kvcache.WithMetricsCollector(events))
//	reg.MustRegister(prom.NewStatsCollector("kvcache", m), events)
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package prom
