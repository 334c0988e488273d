package kvcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"1024", 1024},
		{"64KiB", 64 << 10},
		{"512MiB", 512 << 20},
		{"1GB", 1_000_000_000},
		{"2 GiB", 2 << 30},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseByteSize("lots")
	assert.Error(t, err)
}

func TestByteSize_YAML(t *testing.T) {
	var v struct {
		A ByteSize `yaml:"a"`
		B ByteSize `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 4096\nb: 8MiB\n"), &v))
	assert.Equal(t, ByteSize(4096), v.A)
	assert.Equal(t, ByteSize(8<<20), v.B)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(out), "b: 8.0 MiB")

	assert.Error(t, yaml.Unmarshal([]byte("a: [1, 2]\n"), &v))
	assert.Error(t, yaml.Unmarshal([]byte("a: plenty\n"), &v))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Second, cfg.RebalanceInterval)
	assert.Equal(t, ByteSize(64<<10), cfg.MinCacheQuotaBytes)
	assert.Equal(t, "none", cfg.Compression)

	assert.Error(t, cfg.Validate(), "budget is required")

	cfg.TotalMemoryBudgetBytes = 1 << 30
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
total_memory_budget: 512MiB
rebalance_interval: 5s
min_cache_quota: 1MiB
migration_threshold: 0.5
slots_per_bucket: 16
compression: zstd
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ByteSize(512<<20), cfg.TotalMemoryBudgetBytes)
	assert.Equal(t, 5*time.Second, cfg.RebalanceInterval)
	assert.Equal(t, ByteSize(1<<20), cfg.MinCacheQuotaBytes)
	assert.InDelta(t, 0.5, cfg.MigrationThreshold, 1e-9)
	assert.Equal(t, 16, cfg.SlotsPerBucket)
	assert.Equal(t, "zstd", cfg.Compression)

	// Unset fields keep their defaults.
	assert.InDelta(t, 0.75, cfg.TargetLoadFactor, 1e-9)
	assert.Equal(t, ByteSize(256), cfg.EstimatedEntrySize)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"unknown field", "total_memory_budget: 1MiB\ncache_size: 1GB\n"},
		{"bad compression", "total_memory_budget: 1MiB\ncompression: brotli\n"},
		{"bad duration", "total_memory_budget: 1MiB\nrebalance_interval: often\n"},
		{"min above budget", "total_memory_budget: 1MiB\nmin_cache_quota: 2MiB\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv(EnvTotalMemoryBudget, "2GiB")
	t.Setenv(EnvRebalanceInterval, "250ms")
	t.Setenv(EnvMinCacheQuota, "128KiB")
	t.Setenv(EnvCompression, "lz4")

	path := writeConfig(t, "total_memory_budget: 1MiB\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ByteSize(2<<30), cfg.TotalMemoryBudgetBytes, "environment wins over file")
	assert.Equal(t, 250*time.Millisecond, cfg.RebalanceInterval)
	assert.Equal(t, ByteSize(128<<10), cfg.MinCacheQuotaBytes)
	assert.Equal(t, "lz4", cfg.Compression)
}

func TestConfig_ApplyEnvInvalid(t *testing.T) {
	for _, env := range []string{EnvTotalMemoryBudget, EnvRebalanceInterval, EnvMinCacheQuota} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, "bogus")
			cfg := DefaultConfig()
			assert.Error(t, cfg.ApplyEnv())
		})
	}
}
