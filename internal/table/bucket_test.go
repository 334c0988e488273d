package table

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBucket(capacity int) *Bucket {
	return &Bucket{slots: make([]slot, capacity)}
}

func entry(k string) *Entry {
	return NewEntry(uint64(len(k))+1, []byte(k), []byte("v-"+k))
}

func TestBucket_FindInsertRemove(t *testing.T) {
	b := newBucket(4)

	_, ok := b.Find(2, []byte("a"))
	assert.False(t, ok)

	replaced, err := b.Insert(entry("a"))
	require.NoError(t, err)
	assert.Nil(t, replaced)

	got, ok := b.Find(2, []byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("v-a"), got.Value)

	removed, sealed := b.Remove(2, []byte("a"))
	require.NotNil(t, removed)
	assert.False(t, sealed)
	assert.Equal(t, 0, b.Len())

	removed, _ = b.Remove(2, []byte("a"))
	assert.Nil(t, removed)
}

func TestBucket_HashCollisionComparesKeys(t *testing.T) {
	b := newBucket(4)

	_, err := b.Insert(NewEntry(7, []byte("x"), []byte("1")))
	require.NoError(t, err)
	_, err = b.Insert(NewEntry(7, []byte("y"), []byte("2")))
	require.NoError(t, err)

	got, ok := b.Find(7, []byte("y"))
	require.True(t, ok)
	assert.Equal(t, []byte("2"), got.Value)
	assert.Equal(t, 2, b.Len())
}

func TestBucket_InsertReplacesSameKey(t *testing.T) {
	b := newBucket(2)

	_, err := b.Insert(NewEntry(1, []byte("k"), []byte("old")))
	require.NoError(t, err)

	replaced, err := b.Insert(NewEntry(1, []byte("k"), []byte("new")))
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.Equal(t, []byte("old"), replaced.Value)
	assert.Equal(t, 1, b.Len())
}

func TestBucket_InsertFullWithoutEviction(t *testing.T) {
	b := newBucket(2)
	for _, k := range []string{"a", "bb"} {
		_, err := b.Insert(entry(k))
		require.NoError(t, err)
	}

	_, err := b.Insert(entry("ccc"))
	assert.ErrorIs(t, err, ErrBucketFull)
}

// Capacity-4 bucket, k1..k4 inserted, k5 evicts the coldest entry.
func TestBucket_EvictOneAndInsert(t *testing.T) {
	b := newBucket(4)
	keys := []string{"k1", "k2", "k3", "k4"}
	for i, k := range keys {
		_, err := b.Insert(NewEntry(uint64(i+1), []byte(k), []byte(k)))
		require.NoError(t, err)
	}

	// Warm k1 and k3; k2 (slot 1) and k4 (slot 3) stay at zero.
	b.Find(1, []byte("k1"))
	b.Find(3, []byte("k3"))

	evicted, err := b.EvictOneAndInsert(NewEntry(5, []byte("k5"), []byte("k5")))
	require.NoError(t, err)
	require.NotNil(t, evicted)
	assert.Equal(t, "k2", string(evicted.Key), "lowest aging, lowest slot index")

	_, ok := b.Find(5, []byte("k5"))
	assert.True(t, ok)
	_, ok = b.Find(2, []byte("k2"))
	assert.False(t, ok)
	assert.Equal(t, 4, b.Len())
}

func TestBucket_EvictionTieBreaksOnSlotIndex(t *testing.T) {
	b := newBucket(4)
	for i := range 4 {
		_, err := b.Insert(NewEntry(uint64(i+1), fmt.Appendf(nil, "k%d", i+1), nil))
		require.NoError(t, err)
	}

	evicted, err := b.EvictOneAndInsert(NewEntry(9, []byte("k5"), nil))
	require.NoError(t, err)
	assert.Equal(t, "k1", string(evicted.Key))
}

func TestBucket_AgingDecaysOnEviction(t *testing.T) {
	b := newBucket(2)
	_, _ = b.Insert(NewEntry(1, []byte("hot"), nil))
	_, _ = b.Insert(NewEntry(2, []byte("warm"), nil))

	for range 3 {
		b.Find(1, []byte("hot"))
	}
	b.Find(2, []byte("warm"))

	// warm (aging 1) is evicted, hot decays from 3 to 2.
	evicted, err := b.EvictOneAndInsert(NewEntry(3, []byte("new"), nil))
	require.NoError(t, err)
	assert.Equal(t, "warm", string(evicted.Key))

	// new (0) goes next, hot decays to 1.
	evicted, err = b.EvictOneAndInsert(NewEntry(4, []byte("newer"), nil))
	require.NoError(t, err)
	assert.Equal(t, "new", string(evicted.Key))

	// Repeated eviction pressure eventually makes hot a victim.
	var victims []string
	for i := range 4 {
		evicted, err = b.EvictOneAndInsert(NewEntry(uint64(10+i), fmt.Appendf(nil, "n%d", i), nil))
		require.NoError(t, err)
		victims = append(victims, string(evicted.Key))
	}
	assert.Contains(t, victims, "hot")
}

func TestBucket_AgingSaturates(t *testing.T) {
	b := newBucket(1)
	_, _ = b.Insert(NewEntry(1, []byte("k"), nil))
	for range int(MaxAging) * 3 {
		b.Find(1, []byte("k"))
	}
	assert.Equal(t, MaxAging, b.slots[0].aging)
}

func TestBucket_OccupancyNeverExceedsCapacity(t *testing.T) {
	b := newBucket(4)
	for i := range 100 {
		e := NewEntry(uint64(i+1), fmt.Appendf(nil, "key-%d", i), nil)
		evicted, err := b.EvictOneAndInsert(e)
		require.NoError(t, err)
		if i < 4 {
			assert.Nil(t, evicted)
		} else {
			assert.NotNil(t, evicted, "insert %d must evict exactly one entry", i)
		}
		assert.LessOrEqual(t, b.Len(), 4)
	}
}

func TestBucket_SealRejectsInserts(t *testing.T) {
	b := newBucket(2)
	_, _ = b.Insert(entry("a"))

	var seen []string
	require.True(t, b.Seal(func(e *Entry, _ uint8) { seen = append(seen, string(e.Key)) }))
	assert.Equal(t, []string{"a"}, seen)
	assert.False(t, b.Seal(func(*Entry, uint8) {}))

	_, err := b.Insert(entry("bb"))
	assert.ErrorIs(t, err, ErrSealed)
	assert.Nil(t, b.EvictOne(nil))

	// Sealed buckets still serve lookups and removals.
	_, ok := b.Find(2, []byte("a"))
	assert.True(t, ok)
	removed, sealed := b.Remove(2, []byte("a"))
	assert.NotNil(t, removed)
	assert.True(t, sealed)
}

func TestBucket_AdoptKeepsExisting(t *testing.T) {
	b := newBucket(1)
	_, _ = b.Insert(NewEntry(1, []byte("k"), []byte("fresh")))

	evicted, dropped := b.Adopt(NewEntry(1, []byte("k"), []byte("stale")), 3)
	assert.Nil(t, evicted)
	assert.True(t, dropped)

	got, _ := b.Find(1, []byte("k"))
	assert.Equal(t, []byte("fresh"), got.Value)

	evicted, dropped = b.Adopt(NewEntry(2, []byte("other"), nil), 0)
	assert.False(t, dropped)
	require.NotNil(t, evicted)
	assert.Equal(t, "k", string(evicted.Key))
}

func TestBucket_ClearCountsOnlyChargedEntries(t *testing.T) {
	b := newBucket(2)
	_, _ = b.Insert(entry("a"))
	_, _ = b.Insert(entry("bb"))

	bytes, n := b.Clear()
	assert.Equal(t, 2, n)
	assert.Equal(t, entry("a").Size()+entry("bb").Size(), bytes)
	assert.True(t, b.Sealed())

	s := newBucket(1)
	_, _ = s.Insert(entry("a"))
	s.Seal(func(*Entry, uint8) {})
	bytes, n = s.Clear()
	assert.Zero(t, bytes)
	assert.Zero(t, n)
}

func TestBucket_EvictOneSkipsKeep(t *testing.T) {
	b := newBucket(2)
	keep := NewEntry(1, []byte("keep"), nil)
	_, _ = b.Insert(keep)

	assert.Nil(t, b.EvictOne(keep), "only candidate is protected")

	other := NewEntry(2, []byte("other"), nil)
	_, _ = b.Insert(other)
	b.Find(2, []byte("other"))

	assert.Same(t, other, b.EvictOne(keep))
	assert.Equal(t, 1, b.Len())
}

func TestBucket_AdoptIntoClearedBucketDrops(t *testing.T) {
	b := newBucket(2)
	b.Clear()

	evicted, dropped := b.Adopt(entry("a"), 0)
	assert.Nil(t, evicted)
	assert.True(t, dropped)
	assert.Zero(t, b.Len())
}
