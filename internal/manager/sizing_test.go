package manager

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableSize(t *testing.T) {
	tests := []struct {
		name   string
		quota  int64
		avg    int64
		slots  int
		lf     float64
		expect uint64
	}{
		{"1MiB of 256B entries", 1 << 20, 256, 8, 0.75, 1024},
		{"exact fit", 4096, 64, 4, 1, 16},
		{"tiny quota", 100, 256, 8, 0.75, 1},
		{"zero quota", 0, 256, 8, 0.75, 1},
		{"bad load factor treated as full", 4096, 64, 4, 0, 16},
		{"huge quota capped", math.MaxInt64, 1, 1, 1, maxBuckets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, TableSize(tt.quota, tt.avg, tt.slots, tt.lf))
		})
	}
}

func TestRelativeChange(t *testing.T) {
	assert.InDelta(t, 0.5, relativeChange(100, 150), 1e-9)
	assert.InDelta(t, 0.5, relativeChange(100, 50), 1e-9)
	assert.Zero(t, relativeChange(100, 100))
	assert.True(t, math.IsInf(relativeChange(0, 10), 1))
}
