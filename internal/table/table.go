package table

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/kvcache/internal/hash"
)

// MaxSlotsPerBucket bounds the slot scan done under a bucket lock.
const MaxSlotsPerBucket = 64

// Table is a power-of-two array of buckets. Its shape never changes; growing
// or shrinking means building a new Table and migrating into it.
type Table struct {
	buckets        []Bucket
	size           uint64
	slotsPerBucket int
	freed          atomic.Bool
}

// New creates a table with size buckets of slotsPerBucket slots each.
func New(size uint64, slotsPerBucket int) (*Table, error) {
	if !hash.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("table size %d is not a power of two", size)
	}
	if slotsPerBucket <= 0 || slotsPerBucket > MaxSlotsPerBucket {
		return nil, fmt.Errorf("slots per bucket %d out of range [1, %d]", slotsPerBucket, MaxSlotsPerBucket)
	}

	t := &Table{
		buckets:        make([]Bucket, size),
		size:           size,
		slotsPerBucket: slotsPerBucket,
	}

	// One backing array for all slots keeps buckets contiguous.
	all := make([]slot, int(size)*slotsPerBucket)
	for i := range t.buckets {
		lo := i * slotsPerBucket
		hi := lo + slotsPerBucket
		t.buckets[i].slots = all[lo:hi:hi]
	}

	return t, nil
}

// Size returns the number of buckets.
func (t *Table) Size() uint64 {
	return t.size
}

// SlotsPerBucket returns the slot count of every bucket.
func (t *Table) SlotsPerBucket() int {
	return t.slotsPerBucket
}

// Capacity returns the total number of slots.
func (t *Table) Capacity() int {
	return int(t.size) * t.slotsPerBucket
}

// BucketFor returns the bucket addressed by h.
func (t *Table) BucketFor(h uint64) *Bucket {
	return &t.buckets[hash.BucketIndex(h, t.size)]
}

// Bucket returns the bucket at index i.
func (t *Table) Bucket(i uint64) *Bucket {
	return &t.buckets[i]
}

// IndexOf returns the bucket index addressed by h.
func (t *Table) IndexOf(h uint64) uint64 {
	return hash.BucketIndex(h, t.size)
}

// Len returns the number of occupied slots. It locks each bucket in turn and is
// therefore only approximate under concurrent writes.
func (t *Table) Len() int {
	n := 0
	for i := range t.buckets {
		n += t.buckets[i].Len()
	}
	return n
}

// Free clears every bucket and marks the table freed. It returns the bytes and
// count of entries that were still charged to the owner.
func (t *Table) Free() (bytes int64, entries int) {
	for i := range t.buckets {
		b, n := t.buckets[i].Clear()
		bytes += b
		entries += n
	}
	t.freed.Store(true)
	return bytes, entries
}

// Freed reports whether Free has been called.
func (t *Table) Freed() bool {
	return t.freed.Load()
}
