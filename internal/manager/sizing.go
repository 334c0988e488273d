package manager

import (
	"math"

	"github.com/hupe1980/kvcache/internal/hash"
)

// maxBuckets bounds table sizes so bucket indices fit the migration bitmap.
const maxBuckets = 1 << 31

// TableSize returns the power-of-two bucket count whose slots hold quota
// bytes of avgEntrySize entries at the given load factor.
func TableSize(quota, avgEntrySize int64, slotsPerBucket int, loadFactor float64) uint64 {
	if quota <= 0 || avgEntrySize <= 0 || slotsPerBucket <= 0 {
		return 1
	}
	if loadFactor <= 0 || loadFactor > 1 {
		loadFactor = 1
	}

	entries := math.Ceil(float64(quota) / float64(avgEntrySize))
	buckets := math.Ceil(entries / (float64(slotsPerBucket) * loadFactor))
	if buckets >= maxBuckets {
		return maxBuckets
	}
	return hash.NextPowerOfTwo(max(uint64(buckets), 1))
}

// relativeChange returns |new-old|/old.
func relativeChange(oldQuota, newQuota int64) float64 {
	if oldQuota <= 0 {
		return math.Inf(1)
	}
	return math.Abs(float64(newQuota-oldQuota)) / float64(oldQuota)
}
