package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/kvcache/internal/compress"
	"github.com/hupe1980/kvcache/internal/hash"
	"github.com/hupe1980/kvcache/internal/resource"
	"github.com/hupe1980/kvcache/internal/table"
	"github.com/hupe1980/kvcache/internal/term"
)

// Cache is a logical cache: a named key/value space with its own quota and
// generation list. All methods are safe for concurrent use.
type Cache struct {
	name       string
	id         uint64
	slots      int
	codec      compress.Type
	terms      *term.Tracker
	res        *resource.Controller
	logger     *slog.Logger
	observer   Observer
	beforeFree func(uint64)

	meta      Metadata
	gens      atomic.Pointer[generations]
	migration atomic.Pointer[migration]
	closing   atomic.Bool
	cursor    atomic.Uint64

	// mu serializes structural changes: migrations, close and reclamation.
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache with a single current generation.
func New(opts Options) (*Cache, error) {
	if opts.Terms == nil {
		return nil, errors.New("cache: term tracker is required")
	}
	if opts.Quota <= 0 {
		return nil, fmt.Errorf("cache %q: quota must be positive, got %d", opts.Name, opts.Quota)
	}

	t, err := table.New(opts.Buckets, opts.SlotsPerBucket)
	if err != nil {
		return nil, fmt.Errorf("cache %q: %w", opts.Name, err)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Cache{
		name:       opts.Name,
		id:         opts.ID,
		slots:      opts.SlotsPerBucket,
		codec:      opts.Compression,
		terms:      opts.Terms,
		res:        opts.Resources,
		logger:     opts.Logger,
		observer:   opts.Observer,
		beforeFree: opts.BeforeFree,
		ctx:        ctx,
		cancel:     cancel,
	}
	c.meta.setAllowed(opts.Quota)
	c.gens.Store(&generations{current: newGeneration(t)})

	return c, nil
}

// Name returns the cache name.
func (c *Cache) Name() string { return c.name }

// ID returns the registry identifier.
func (c *Cache) ID() uint64 { return c.id }

// Metadata returns the cache accounting.
func (c *Cache) Metadata() *Metadata { return &c.meta }

// Closed reports whether Close has been called.
func (c *Cache) Closed() bool { return c.closing.Load() }

// Buckets returns the size of the current table, or 0 once closed.
func (c *Cache) Buckets() uint64 {
	if cur := c.gens.Load().current; cur != nil {
		return cur.table.Size()
	}
	return 0
}

// Lookup returns the value stored for key. A miss is not an error.
// The returned slice must be treated as read-only.
func (c *Cache) Lookup(key []byte) ([]byte, bool, error) {
	if c.closing.Load() {
		return nil, false, ErrCacheClosed
	}

	g := c.terms.Acquire()
	defer g.Release()

	if c.closing.Load() {
		return nil, false, ErrCacheClosed
	}

	h := hash.Key(key)
	e, ok := c.gens.Load().find(h, key)
	if !ok {
		c.meta.misses.Add(1)
		c.observer.OnLookup(c.name, false)
		return nil, false, nil
	}

	c.meta.hits.Add(1)
	c.observer.OnLookup(c.name, true)

	v, err := compress.Decode(c.codec, e.Value)
	if err != nil {
		return nil, false, fmt.Errorf("cache %q: %w", c.name, err)
	}
	return v, true, nil
}

// Insert stores value under key, replacing any previous value. When the
// cache is over quota it evicts other entries instead of rejecting; only an
// entry larger than the whole quota is rejected with a *QuotaError.
func (c *Cache) Insert(key, value []byte) (InsertResult, error) {
	res, err := c.insert(key, value)
	c.observer.OnInsert(c.name, res)
	return res, err
}

func (c *Cache) insert(key, value []byte) (InsertResult, error) {
	if c.closing.Load() {
		return RejectedClosed, ErrCacheClosed
	}

	g := c.terms.Acquire()
	defer g.Release()

	if c.closing.Load() {
		return RejectedClosed, ErrCacheClosed
	}

	var (
		stored []byte
		err    error
	)
	if c.codec == compress.None {
		stored = bytes.Clone(value)
	} else if stored, err = compress.Encode(c.codec, value); err != nil {
		return InsertFailed, fmt.Errorf("cache %q: %w", c.name, err)
	}

	size := table.SizeOf(len(key), len(stored))
	if quota := c.meta.Allowed(); size > quota {
		c.meta.rejections.Add(1)
		return RejectedOverQuota, &QuotaError{Cache: c.name, EntrySize: size, Quota: quota}
	}

	h := hash.Key(key)
	e := table.NewEntry(h, bytes.Clone(key), stored)

	var (
		gens      *generations
		displaced *table.Entry
	)
	for {
		gens = c.gens.Load()
		cur := gens.current
		if cur == nil {
			return RejectedClosed, ErrCacheClosed
		}

		idx := cur.table.IndexOf(h)
		if m := c.migration.Load(); m != nil && m.dst == cur.table {
			c.migrateSources(m, idx)
		}

		// Drop shadows so an older value cannot reappear once the new
		// entry is evicted.
		for _, d := range gens.draining {
			c.removeFrom(d.table, h, key)
		}

		displaced, err = cur.table.Bucket(idx).EvictOneAndInsert(e)
		if errors.Is(err, table.ErrSealed) {
			// A migration or close retired this table concurrently.
			continue
		}
		if err != nil {
			return InsertFailed, fmt.Errorf("cache %q: %w", c.name, err)
		}
		break
	}

	c.meta.charge(size, 1)
	c.meta.inserts.Add(1)
	if displaced != nil {
		if displaced.Hash == h && bytes.Equal(displaced.Key, key) {
			c.meta.discharge(displaced.Size(), 1)
		} else {
			c.evicted(displaced)
		}
	}

	if c.meta.overQuota() {
		c.freeMemory(gens, e)
	}

	return Accepted, nil
}

// Remove deletes key from every live generation. It reports whether an entry
// was found.
func (c *Cache) Remove(key []byte) (bool, error) {
	if c.closing.Load() {
		return false, ErrCacheClosed
	}

	g := c.terms.Acquire()
	defer g.Release()

	if c.closing.Load() {
		return false, ErrCacheClosed
	}

	h := hash.Key(key)
	found := false
	gens := c.gens.Load()
	for {
		// Oldest first: a copy that a concurrent migration moves forward is
		// caught in the newer table afterwards.
		for i := len(gens.draining) - 1; i >= 0; i-- {
			if c.removeFrom(gens.draining[i].table, h, key) {
				found = true
			}
		}
		if gens.current != nil && c.removeFrom(gens.current.table, h, key) {
			found = true
		}

		// A migration started meanwhile may have copied the entry into a
		// table this pass did not visit.
		next := c.gens.Load()
		if next == gens {
			break
		}
		gens = next
	}

	if found {
		c.meta.removals.Add(1)
	}
	return found, nil
}

// removeFrom removes key from t and discharges it unless it was a shadow.
func (c *Cache) removeFrom(t *table.Table, h uint64, key []byte) bool {
	removed, sealed := t.BucketFor(h).Remove(h, key)
	if removed == nil {
		return false
	}
	if !sealed {
		c.meta.discharge(removed.Size(), 1)
	}
	return true
}

func (c *Cache) evicted(e *table.Entry) {
	size := e.Size()
	c.meta.discharge(size, 1)
	c.meta.evictions.Add(1)
	c.observer.OnEviction(c.name, size)
}

// freeMemory evicts the coldest entry of successive buckets, starting at a
// rotating cursor, until the cache is back within its quota. keep is never
// evicted.
func (c *Cache) freeMemory(gens *generations, keep *table.Entry) {
	for _, t := range gens.tables() {
		size := t.Size()
		limit := size * uint64(t.SlotsPerBucket())
		start := c.cursor.Load()

		var i uint64
		for ; i < limit && c.meta.overQuota(); i++ {
			if e := t.Bucket((start + i) & (size - 1)).EvictOne(keep); e != nil {
				c.evicted(e)
			}
		}
		c.cursor.Add(i)

		if !c.meta.overQuota() {
			return
		}
	}
}

// SetQuota changes the allowed bytes and evicts down to the new quota.
func (c *Cache) SetQuota(bytes int64) error {
	if bytes <= 0 {
		return fmt.Errorf("cache %q: quota must be positive, got %d", c.name, bytes)
	}
	if c.closing.Load() {
		return ErrCacheClosed
	}

	c.meta.setAllowed(bytes)
	if c.meta.overQuota() {
		g := c.terms.Acquire()
		c.freeMemory(c.gens.Load(), nil)
		g.Release()
	}
	return nil
}

// Migrate installs a new current table of the given number of buckets and
// starts copying entries into it. An unfinished earlier migration is
// completed first. It returns false if the table already has that size.
func (c *Cache) Migrate(buckets uint64) (bool, error) {
	if c.closing.Load() {
		return false, ErrCacheClosed
	}
	if m := c.migration.Load(); m != nil {
		c.copyAll(m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() {
		return false, ErrCacheClosed
	}
	if m := c.migration.Load(); m != nil {
		// Another caller started a migration while we were copying.
		c.mu.Unlock()
		c.copyAll(m)
		c.mu.Lock()
		if c.closing.Load() {
			return false, ErrCacheClosed
		}
	}

	gens := c.gens.Load()
	cur := gens.current
	if cur.table.Size() == buckets {
		return false, nil
	}

	dst, err := table.New(buckets, c.slots)
	if err != nil {
		return false, fmt.Errorf("cache %q: %w", c.name, err)
	}

	src := &generation{table: cur.table}
	m := newMigration(src, dst)
	src.migration = m

	next := &generations{current: newGeneration(dst)}
	next.draining = append(next.draining, src)
	next.draining = append(next.draining, gens.draining...)

	c.migration.Store(m)
	c.gens.Store(next)

	// Every guard that may still see the old snapshot was acquired before
	// this advance.
	t := c.terms.Advance()
	src.retire(t - 1)

	c.logger.Info("migration started",
		"cache", c.name,
		"old_buckets", cur.table.Size(),
		"new_buckets", buckets,
		"term", t-1,
	)

	c.wg.Add(1)
	go c.runMigration(m)

	return true, nil
}

// FinishMigration copies all remaining buckets of the running migration, if
// any, in the calling goroutine.
func (c *Cache) FinishMigration() {
	if c.closing.Load() {
		return
	}
	if m := c.migration.Load(); m != nil {
		c.copyAll(m)
	}
}

// Migrating reports whether a migration is still copying.
func (c *Cache) Migrating() bool {
	return c.migration.Load() != nil
}

// Close marks the cache closed, retires every generation at the current term
// and advances the term. It returns immediately; tables are freed by later
// Reclaim calls once no older guard remains.
func (c *Cache) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return ErrCacheClosed
	}
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	gens := c.gens.Load()
	next := gens.retire(nil)
	c.gens.Store(next)

	t := c.terms.Advance()
	// Every generation must outlive every guard of the closing term.
	for _, g := range next.draining {
		g.retire(t - 1)
	}

	c.logger.Info("cache closed", "cache", c.name, "term", t-1)
	return nil
}

// Reclaim frees draining generations that are no longer copied from and
// whose retire term is quiescent. It returns the number of generations freed
// and deferred.
func (c *Cache) Reclaim() (freed, deferred int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gens := c.gens.Load()
	if len(gens.draining) == 0 {
		return 0, 0
	}

	closed := c.closing.Load()
	done := make(map[*generation]struct{})

	for _, g := range gens.draining {
		if !closed && g.copying() {
			deferred++
			continue
		}
		// Load after the copying check; finishing a copy raises it.
		at := g.retiredAt.Load()
		if !c.terms.CanReclaim(at) {
			deferred++
			continue
		}

		if c.beforeFree != nil {
			c.beforeFree(at)
		}
		bytes, n := g.table.Free()
		c.meta.discharge(bytes, int64(n))
		done[g] = struct{}{}
		freed++

		c.logger.Debug("generation reclaimed",
			"cache", c.name,
			"term", at,
			"buckets", g.table.Size(),
			"bytes", bytes,
		)
	}

	if freed > 0 {
		c.gens.Store(gens.without(done))
	}
	return freed, deferred
}

// Drained reports whether the cache is closed and every generation has been
// freed.
func (c *Cache) Drained() bool {
	return c.closing.Load() && c.gens.Load().len() == 0
}

// Wait blocks until background migration workers have exited.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Stats returns a snapshot of the cache.
func (c *Cache) Stats() Stats {
	gens := c.gens.Load()

	var buckets uint64
	if gens.current != nil {
		buckets = gens.current.table.Size()
	}

	hits, misses := c.meta.Hits(), c.meta.Misses()
	return Stats{
		Name:          c.name,
		ID:            c.id,
		UsedBytes:     c.meta.Used(),
		AllowedBytes:  c.meta.Allowed(),
		Entries:       c.meta.Entries(),
		Hits:          hits,
		Misses:        misses,
		HitRate:       ratio(hits, misses),
		WindowHitRate: c.meta.WindowHitRate(),
		Inserts:       c.meta.inserts.Load(),
		Rejections:    c.meta.rejections.Load(),
		Evictions:     c.meta.evictions.Load(),
		Removals:      c.meta.removals.Load(),
		Migrations:    c.meta.migrations.Load(),
		Buckets:       buckets,
		Generations:   gens.len(),
		Migrating:     c.Migrating(),
		Closed:        c.closing.Load(),
		Term:          c.terms.Current(),
		LastRebalance: c.meta.LastRebalance(),
	}
}
