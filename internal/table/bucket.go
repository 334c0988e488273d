package table

import (
	"errors"
	"sync"
)

// MaxAging is the saturation value of a slot's aging counter.
const MaxAging uint8 = 15

var (
	// ErrBucketFull is returned by Insert when no slot is free.
	ErrBucketFull = errors.New("bucket full")

	// ErrSealed is returned when inserting into a bucket that was migrated.
	ErrSealed = errors.New("bucket sealed")
)

type slot struct {
	entry *Entry
	aging uint8
}

// Bucket is a fixed-capacity array of slots guarded by its own mutex.
type Bucket struct {
	mu     sync.Mutex
	slots  []slot
	sealed bool
}

// Capacity returns the number of slots.
func (b *Bucket) Capacity() int {
	return len(b.slots)
}

// Find returns the entry stored for key and bumps its aging counter.
func (b *Bucket) Find(hash uint64, key []byte) (*Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.slots {
		s := &b.slots[i]
		if s.entry != nil && s.entry.matches(hash, key) {
			if s.aging < MaxAging {
				s.aging++
			}
			return s.entry, true
		}
	}
	return nil, false
}

// Insert stores e in the slot holding the same key or in an empty slot.
// It returns the replaced entry, if any, and ErrBucketFull when no slot is
// available.
func (b *Bucket) Insert(e *Entry) (*Entry, error) {
	return b.Put(e, false)
}

// EvictOneAndInsert stores e, evicting the coldest entry if the bucket is full.
// It returns the displaced entry: the replaced entry for the same key, the
// evicted victim, or nil when a free slot was used.
func (b *Bucket) EvictOneAndInsert(e *Entry) (*Entry, error) {
	return b.Put(e, true)
}

// Put stores e. When the bucket is full and evict is set, the occupied slot
// with the lowest aging counter (lowest index on ties) is evicted and every
// other slot is decayed by one.
func (b *Bucket) Put(e *Entry, evict bool) (*Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil, ErrSealed
	}

	free := -1
	for i := range b.slots {
		s := &b.slots[i]
		if s.entry == nil {
			if free < 0 {
				free = i
			}
			continue
		}
		if s.entry.matches(e.Hash, e.Key) {
			old := s.entry
			s.entry = e
			s.aging = 0
			return old, nil
		}
	}

	if free >= 0 {
		b.slots[free] = slot{entry: e}
		return nil, nil
	}
	if !evict || len(b.slots) == 0 {
		return nil, ErrBucketFull
	}

	victim, evicted := b.evictLocked(nil)
	b.slots[victim] = slot{entry: e}
	return evicted, nil
}

// Remove deletes the entry stored for key. sealed reports whether the bucket
// had been migrated, in which case the removed entry was a shadow copy.
func (b *Bucket) Remove(hash uint64, key []byte) (removed *Entry, sealed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.slots {
		s := &b.slots[i]
		if s.entry != nil && s.entry.matches(hash, key) {
			removed = s.entry
			*s = slot{}
			return removed, b.sealed
		}
	}
	return nil, b.sealed
}

// EvictOne evicts the coldest entry other than keep without inserting a
// replacement. Sealed and empty buckets are left untouched.
func (b *Bucket) EvictOne(keep *Entry) *Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil
	}
	victim, evicted := b.evictLocked(keep)
	if victim < 0 {
		return nil
	}
	b.slots[victim] = slot{}
	return evicted
}

// Len returns the number of occupied slots.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for i := range b.slots {
		if b.slots[i].entry != nil {
			n++
		}
	}
	return n
}

// Sealed reports whether the bucket was migrated or cleared.
func (b *Bucket) Sealed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sealed
}

// Seal calls fn for every entry while holding the bucket lock and then marks
// the bucket sealed. It returns false if the bucket was already sealed.
func (b *Bucket) Seal(fn func(e *Entry, aging uint8)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return false
	}
	for i := range b.slots {
		if s := b.slots[i]; s.entry != nil {
			fn(s.entry, s.aging)
		}
	}
	b.sealed = true
	return true
}

// Adopt installs an entry copied from a predecessor table. An entry already
// present for the same key wins and e is dropped, as it is when the bucket
// has been cleared. When the bucket is full the coldest entry is evicted.
func (b *Bucket) Adopt(e *Entry, aging uint8) (evicted *Entry, dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil, true
	}

	free := -1
	for i := range b.slots {
		s := &b.slots[i]
		if s.entry == nil {
			if free < 0 {
				free = i
			}
			continue
		}
		if s.entry.matches(e.Hash, e.Key) {
			return nil, true
		}
	}

	if free >= 0 {
		b.slots[free] = slot{entry: e, aging: aging}
		return nil, false
	}
	if len(b.slots) == 0 {
		return nil, true
	}

	victim, evicted := b.evictLocked(nil)
	b.slots[victim] = slot{entry: e, aging: aging}
	return evicted, false
}

// Clear drops every entry and seals the bucket. It returns the bytes and count
// of entries that were still charged, i.e. not shadows of migrated copies.
func (b *Bucket) Clear() (bytes int64, entries int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.slots {
		s := &b.slots[i]
		if s.entry == nil {
			continue
		}
		if !b.sealed {
			bytes += s.entry.Size()
			entries++
		}
		*s = slot{}
	}
	b.sealed = true
	return bytes, entries
}

// evictLocked selects the victim slot, never keep, and decays the others.
// It returns -1 if no candidate exists.
func (b *Bucket) evictLocked(keep *Entry) (int, *Entry) {
	victim := -1
	for i := range b.slots {
		s := &b.slots[i]
		if s.entry == nil || s.entry == keep {
			continue
		}
		if victim < 0 || s.aging < b.slots[victim].aging {
			victim = i
		}
	}
	if victim < 0 {
		return -1, nil
	}
	for i := range b.slots {
		s := &b.slots[i]
		if i != victim && s.entry != nil && s.aging > 0 {
			s.aging--
		}
	}
	return victim, b.slots[victim].entry
}
