package kvcache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/kvcache/internal/compress"
	"github.com/hupe1980/kvcache/internal/manager"
)

// Environment variables read by ApplyEnv.
const (
	EnvTotalMemoryBudget = "KVCACHE_TOTAL_MEMORY_BUDGET"
	EnvRebalanceInterval = "KVCACHE_REBALANCE_INTERVAL"
	EnvMinCacheQuota     = "KVCACHE_MIN_CACHE_QUOTA"
	EnvCompression       = "KVCACHE_COMPRESSION"
)

// ByteSize is a size in bytes. In YAML it accepts plain integers as well as
// human-readable strings such as "512MiB" or "1GB".
type ByteSize int64

// ParseByteSize parses a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("byte size %q too large", s)
	}
	return ByteSize(n), nil
}

// Bytes returns the size as an int64.
func (b ByteSize) Bytes() int64 { return int64(b) }

func (b ByteSize) String() string {
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	return humanize.IBytes(uint64(b))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: byte size must be a number or string", value.Line)
	}
	v, err := ParseByteSize(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

// Config holds the manager settings. It is read once when the manager is
// created.
type Config struct {
	// TotalMemoryBudgetBytes is the budget shared by all cache quotas. Required.
	TotalMemoryBudgetBytes ByteSize `yaml:"total_memory_budget"`

	// RebalanceInterval is the period of the background rebalancer.
	// If 0, the rebalancer does not run and Rebalance must be called explicitly.
	RebalanceInterval time.Duration `yaml:"rebalance_interval"`

	// MinCacheQuotaBytes is the smallest quota any cache is given.
	MinCacheQuotaBytes ByteSize `yaml:"min_cache_quota"`

	// MigrationThreshold is the relative quota change above which a cache
	// table is migrated to a new size.
	MigrationThreshold float64 `yaml:"migration_threshold"`

	// TargetLoadFactor is the slot occupancy new tables are sized for.
	TargetLoadFactor float64 `yaml:"target_load_factor"`

	// SlotsPerBucket is the capacity of every bucket (max 64).
	SlotsPerBucket int `yaml:"slots_per_bucket"`

	// EstimatedEntrySize sizes tables until a cache has real entries.
	EstimatedEntrySize ByteSize `yaml:"estimated_entry_size"`

	// MaxConcurrentMigrations bounds concurrent resizes and background copiers.
	MaxConcurrentMigrations int `yaml:"max_concurrent_migrations"`

	// MigrationBucketsPerSecond throttles background copying. If 0, unlimited.
	MigrationBucketsPerSecond int64 `yaml:"migration_buckets_per_second"`

	// Compression is the value codec: "none", "lz4" or "zstd".
	Compression string `yaml:"compression"`
}

// DefaultConfig returns a Config with defaults for everything but the
// memory budget.
func DefaultConfig() Config {
	d := manager.DefaultConfig()
	return Config{
		RebalanceInterval:         d.RebalanceInterval,
		MinCacheQuotaBytes:        ByteSize(d.MinCacheQuotaBytes),
		MigrationThreshold:        d.MigrationThreshold,
		TargetLoadFactor:          d.TargetLoadFactor,
		SlotsPerBucket:            d.SlotsPerBucket,
		EstimatedEntrySize:        ByteSize(d.EstimatedEntrySize),
		MaxConcurrentMigrations:   d.MaxConcurrentMigrations,
		MigrationBucketsPerSecond: d.MigrationBucketsPerSecond,
		Compression:               compress.None.String(),
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig, applies environment
// overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from KVCACHE_* environment variables.
func (c *Config) ApplyEnv() error {
	if val, ok := os.LookupEnv(EnvTotalMemoryBudget); ok && val != "" {
		n, err := ParseByteSize(val)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTotalMemoryBudget, err)
		}
		c.TotalMemoryBudgetBytes = n
	}
	if val, ok := os.LookupEnv(EnvRebalanceInterval); ok && val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRebalanceInterval, err)
		}
		c.RebalanceInterval = d
	}
	if val, ok := os.LookupEnv(EnvMinCacheQuota); ok && val != "" {
		n, err := ParseByteSize(val)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMinCacheQuota, err)
		}
		c.MinCacheQuotaBytes = n
	}
	if val, ok := os.LookupEnv(EnvCompression); ok && val != "" {
		c.Compression = val
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	mc, err := c.managerConfig()
	if err != nil {
		return err
	}
	return mc.Validate()
}

func (c Config) managerConfig() (manager.Config, error) {
	codec, err := compress.ParseType(c.Compression)
	if err != nil {
		return manager.Config{}, err
	}
	return manager.Config{
		TotalMemoryBudgetBytes:    c.TotalMemoryBudgetBytes.Bytes(),
		RebalanceInterval:         c.RebalanceInterval,
		MinCacheQuotaBytes:        c.MinCacheQuotaBytes.Bytes(),
		MigrationThreshold:        c.MigrationThreshold,
		TargetLoadFactor:          c.TargetLoadFactor,
		SlotsPerBucket:            c.SlotsPerBucket,
		EstimatedEntrySize:        c.EstimatedEntrySize.Bytes(),
		MaxConcurrentMigrations:   c.MaxConcurrentMigrations,
		MigrationBucketsPerSecond: c.MigrationBucketsPerSecond,
		Compression:               codec,
	}, nil
}
