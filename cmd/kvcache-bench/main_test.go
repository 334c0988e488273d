package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	o, err := parseFlags([]string{"-n", "2", "-w", "3", "-d", "1s", "--skew", "1.5", "--budget", "8MiB"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 2, o.caches)
	assert.Equal(t, 3, o.workers)
	assert.Equal(t, time.Second, o.duration)
	assert.InDelta(t, 1.5, o.skew, 1e-9)

	cfg, err := o.config()
	require.NoError(t, err)
	assert.Equal(t, int64(8<<20), cfg.TotalMemoryBudgetBytes.Bytes())
}

func TestParseFlags_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"--caches", "0"},
		{"--workers", "-1"},
		{"--skew", "1"},
		{"--value-size", "0"},
		{"--no-such-flag"},
	} {
		var stderr bytes.Buffer
		_, err := parseFlags(args, &stderr)
		assert.Error(t, err, args)
	}
}

func TestRun(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(t.Context(), []string{
		"--budget", "4MiB",
		"--caches", "3",
		"--workers", "4",
		"--duration", "300ms",
		"--keys", "5000",
		"--value-size", "256",
		"--rebalance-interval", "50ms",
		"--log-level", "warn",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "cache-00")
	assert.Contains(t, out, "cache-02")
	assert.Contains(t, out, "lookups")
	assert.Contains(t, out, "budget 4.0 MiB")
}

func TestRun_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("total_memory_budget: 2MiB\ncompression: lz4\nrebalance_interval: 100ms\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(t.Context(), []string{"-c", path, "-n", "1", "-w", "1", "-d", "100ms", "--keys", "100"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "budget 2.0 MiB")
}

func TestRun_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(t.Context(), []string{"--caches", "0"}, &stdout, &stderr))
	assert.Equal(t, 0, run(t.Context(), []string{"--help"}, &stdout, &stderr))
	assert.Equal(t, 1, run(t.Context(), []string{"--compression", "brotli", "-d", "10ms"}, &stdout, &stderr))
	assert.Equal(t, 1, run(t.Context(), []string{"--log-level", "loud", "-d", "10ms"}, &stdout, &stderr))
}
