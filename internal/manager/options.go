package manager

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/kvcache/internal/compress"
	"github.com/hupe1980/kvcache/internal/table"
)

// Config holds the manager settings.
type Config struct {
	// TotalMemoryBudgetBytes is the budget shared by all cache quotas.
	TotalMemoryBudgetBytes int64

	// RebalanceInterval is the period of the background rebalancer.
	// If 0, no background loop runs and Rebalance must be called explicitly.
	RebalanceInterval time.Duration

	// MinCacheQuotaBytes is the smallest quota a cache is given.
	MinCacheQuotaBytes int64

	// MigrationThreshold is the relative quota change that triggers a
	// table migration.
	MigrationThreshold float64

	// TargetLoadFactor is the slot occupancy a table is sized for.
	TargetLoadFactor float64

	// SlotsPerBucket is the capacity of every bucket.
	SlotsPerBucket int

	// EstimatedEntrySize sizes tables of caches without entries.
	EstimatedEntrySize int64

	// MaxConcurrentMigrations bounds concurrent resizes and background
	// copiers.
	MaxConcurrentMigrations int

	// MigrationBucketsPerSecond throttles background copying. If 0, unlimited.
	MigrationBucketsPerSecond int64

	// Compression selects the value codec of every cache.
	Compression compress.Type
}

// DefaultConfig returns a Config with defaults for everything but the budget.
func DefaultConfig() Config {
	return Config{
		RebalanceInterval:       2 * time.Second,
		MinCacheQuotaBytes:      64 << 10,
		MigrationThreshold:      0.25,
		TargetLoadFactor:        0.75,
		SlotsPerBucket:          8,
		EstimatedEntrySize:      256,
		MaxConcurrentMigrations: 2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TotalMemoryBudgetBytes <= 0 {
		return fmt.Errorf("total memory budget must be positive, got %d", c.TotalMemoryBudgetBytes)
	}
	if c.RebalanceInterval < 0 {
		return fmt.Errorf("rebalance interval must not be negative, got %s", c.RebalanceInterval)
	}
	if c.MinCacheQuotaBytes <= 0 || c.MinCacheQuotaBytes > c.TotalMemoryBudgetBytes {
		return fmt.Errorf("min cache quota %d out of range (0, %d]", c.MinCacheQuotaBytes, c.TotalMemoryBudgetBytes)
	}
	if c.MigrationThreshold < 0 {
		return fmt.Errorf("migration threshold must not be negative, got %g", c.MigrationThreshold)
	}
	if c.TargetLoadFactor <= 0 || c.TargetLoadFactor > 1 {
		return fmt.Errorf("target load factor %g out of range (0, 1]", c.TargetLoadFactor)
	}
	if c.SlotsPerBucket <= 0 || c.SlotsPerBucket > table.MaxSlotsPerBucket {
		return fmt.Errorf("slots per bucket %d out of range [1, %d]", c.SlotsPerBucket, table.MaxSlotsPerBucket)
	}
	if c.EstimatedEntrySize <= 0 {
		return fmt.Errorf("estimated entry size must be positive, got %d", c.EstimatedEntrySize)
	}
	if c.MaxConcurrentMigrations <= 0 {
		return fmt.Errorf("max concurrent migrations must be positive, got %d", c.MaxConcurrentMigrations)
	}
	if c.MigrationBucketsPerSecond < 0 {
		return fmt.Errorf("migration buckets per second must not be negative, got %d", c.MigrationBucketsPerSecond)
	}
	return nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for the manager and its caches.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithPolicy replaces the rebalancing policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithClock sets the time source used for rebalance timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}
