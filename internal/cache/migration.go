package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/kvcache/internal/hash"
	"github.com/hupe1980/kvcache/internal/table"
)

// migration copies the entries of one generation into a new table.
type migration struct {
	src     *generation
	dst     *table.Table
	started time.Time

	mu      sync.Mutex
	pending *roaring.Bitmap // source bucket indices not sealed yet

	dropped atomic.Uint64
	done    chan struct{}
}

func newMigration(src *generation, dst *table.Table) *migration {
	pending := roaring.New()
	pending.AddRange(0, src.table.Size())

	return &migration{
		src:     src,
		dst:     dst,
		started: time.Now(),
		pending: pending,
		done:    make(chan struct{}),
	}
}

func (m *migration) finished() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *migration) isPending(i uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Contains(uint32(i))
}

// next returns the lowest source bucket that still has to be copied.
func (m *migration) next() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending.IsEmpty() {
		return 0, false
	}
	return uint64(m.pending.Minimum()), true
}

// remaining returns the number of source buckets not copied yet.
func (m *migration) remaining() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.GetCardinality()
}

// complete marks bucket i copied. It returns true for exactly one caller: the
// one that copied the last bucket.
func (m *migration) complete(i uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.CheckedRemove(uint32(i)) && m.pending.IsEmpty()
}

// migrateBucket copies source bucket i into the destination table and seals
// it. The source bucket lock is held while destination buckets are locked;
// no other path nests bucket locks, so the order is fixed.
func (c *Cache) migrateBucket(m *migration, i uint64) {
	if !m.isPending(i) {
		return
	}

	m.src.table.Bucket(i).Seal(func(e *table.Entry, aging uint8) {
		evicted, dropped := m.dst.BucketFor(e.Hash).Adopt(e, aging)
		if dropped {
			// A newer entry for the key already lives in the destination.
			c.meta.discharge(e.Size(), 1)
			m.dropped.Add(1)
		}
		if evicted != nil {
			c.evicted(evicted)
		}
	})

	if m.complete(i) {
		c.finishMigration(m)
	}
}

// migrateSources copies every source bucket that feeds destination bucket idx.
func (c *Cache) migrateSources(m *migration, idx uint64) {
	hash.SourceBuckets(idx, m.src.table.Size(), m.dst.Size(), func(s uint64) {
		c.migrateBucket(m, s)
	})
}

// copyAll copies every pending bucket in the calling goroutine and waits
// until the migration is marked finished.
func (c *Cache) copyAll(m *migration) {
	for {
		i, ok := m.next()
		if !ok {
			break
		}
		c.migrateBucket(m, i)
	}
	<-m.done
}

// runMigration is the eager background copier.
func (c *Cache) runMigration(m *migration) {
	defer c.wg.Done()

	if !c.res.TryAcquireBackground() {
		c.logger.Debug("migration copier waiting for a worker", "cache", c.name)
		if err := c.res.AcquireBackground(c.ctx); err != nil {
			return
		}
	}
	defer c.res.ReleaseBackground()

	for c.ctx.Err() == nil {
		i, ok := m.next()
		if !ok {
			return
		}
		if err := c.res.AcquireMigration(c.ctx, 1); err != nil {
			return
		}
		c.migrateBucket(m, i)
	}
}

// finishMigration publishes the end of m. The source generation is
// re-stamped with the term before a fresh advance: a guard taken before that
// advance may have missed in a destination bucket that was not copied yet and
// still has to fall through to the source.
func (c *Cache) finishMigration(m *migration) {
	t := c.terms.Advance()
	m.src.retire(t - 1)

	c.migration.CompareAndSwap(m, nil)
	close(m.done)

	if c.closing.Load() {
		return
	}

	c.meta.migrations.Add(1)

	d := time.Since(m.started)
	c.logger.Info("migration completed",
		"cache", c.name,
		"old_buckets", m.src.table.Size(),
		"new_buckets", m.dst.Size(),
		"dropped", m.dropped.Load(),
		"duration", d,
	)
	c.observer.OnMigration(c.name, d, m.dst.Size())
}
