package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Stable(t *testing.T) {
	a := Key([]byte("block/42"))
	b := Key([]byte("block/42"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Key([]byte("block/43")))
	assert.NotZero(t, Key(nil))
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {1024, 1024}, {1025, 2048},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextPowerOfTwo(tt.in), "in=%d", tt.in)
	}
	assert.True(t, IsPowerOfTwo(64))
	assert.False(t, IsPowerOfTwo(0))
	assert.False(t, IsPowerOfTwo(12))
	assert.Equal(t, uint32(6), Log2(64))
}

func TestMigrationMappingAgrees(t *testing.T) {
	for _, sizes := range [][2]uint64{{4, 16}, {16, 4}, {8, 8}} {
		oldSize, newSize := sizes[0], sizes[1]
		for h := uint64(0); h < 256; h++ {
			src := BucketIndex(h, oldSize)
			dst := BucketIndex(h, newSize)

			var fromSrc, fromDst bool
			TargetBuckets(src, oldSize, newSize, func(i uint64) {
				if i == dst {
					fromSrc = true
				}
			})
			SourceBuckets(dst, oldSize, newSize, func(i uint64) {
				if i == src {
					fromDst = true
				}
			})
			assert.True(t, fromSrc, "old=%d new=%d h=%d", oldSize, newSize, h)
			assert.True(t, fromDst, "old=%d new=%d h=%d", oldSize, newSize, h)
		}
	}
}
