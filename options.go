package kvcache

import (
	"log/slog"
	"time"

	"github.com/hupe1980/kvcache/internal/manager"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	policy           Policy
	clock            func() time.Time
}

// Option configures a Manager.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for cache events.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &kvcache.BasicMetricsCollector{}
//	m, _ := kvcache.New(cfg, kvcache.WithMetricsCollector(metrics))
//	// ... use m ...
//	stats := metrics.GetStats()
//	fmt.Printf("Lookups: %d, hit rate: %.2f\n", stats.LookupCount, stats.HitRate)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for the manager and its caches.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := kvcache.NewJSONLogger(slog.LevelInfo)
//	m, _ := kvcache.New(cfg, kvcache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithPolicy replaces the quota allocation policy used by the rebalancer.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithClock sets the time source for rebalance timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o options) managerOptions() []manager.Option {
	opts := []manager.Option{
		manager.WithLogger(o.logger.Logger),
		manager.WithObserver(collectorObserver{mc: o.metricsCollector}),
	}
	if o.policy != nil {
		opts = append(opts, manager.WithPolicy(o.policy))
	}
	if o.clock != nil {
		opts = append(opts, manager.WithClock(o.clock))
	}
	return opts
}
