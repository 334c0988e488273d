package hash

import (
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// Key returns the 64-bit hash of a cache key.
// Zero is reserved for empty slots, so a zero hash is remapped to one.
func Key(key []byte) uint64 {
	h := xxhash.Sum64(key)
	if h == 0 {
		return 1
	}
	return h
}

// BucketIndex returns the bucket index of h in a table with size buckets.
// size must be a power of two.
func BucketIndex(h uint64, size uint64) uint64 {
	return h & (size - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n (1 for n == 0).
func NextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << (64 - bits.LeadingZeros64(n-1))
}

// Log2 returns log2(n) for a power of two n.
func Log2(n uint64) uint32 {
	return uint32(bits.TrailingZeros64(n))
}

// SourceBuckets calls fn for every bucket of a table of oldSize buckets whose
// entries may land in bucket idx of a table with newSize buckets.
func SourceBuckets(idx, oldSize, newSize uint64, fn func(uint64)) {
	if oldSize <= newSize {
		fn(idx & (oldSize - 1))
		return
	}
	for src := idx; src < oldSize; src += newSize {
		fn(src)
	}
}

// TargetBuckets calls fn for every bucket of a table of newSize buckets that
// may receive entries from bucket idx of a table with oldSize buckets.
func TargetBuckets(idx, oldSize, newSize uint64, fn func(uint64)) {
	if newSize <= oldSize {
		fn(idx & (newSize - 1))
		return
	}
	for dst := idx; dst < newSize; dst += oldSize {
		fn(dst)
	}
}
