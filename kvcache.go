package kvcache

import (
	"context"
	"fmt"

	"github.com/hupe1980/kvcache/internal/cache"
	"github.com/hupe1980/kvcache/internal/manager"
	"github.com/hupe1980/kvcache/internal/term"
)

// Stats is a point-in-time snapshot of a Manager.
type Stats = manager.Stats

// CacheStats is a point-in-time snapshot of a single cache.
type CacheStats = cache.Stats

// Policy computes new quotas on every rebalance tick.
type Policy = manager.Policy

// CacheUsage is the per-cache input of a Policy.
type CacheUsage = manager.CacheUsage

// HitRatePolicy is the default Policy. It shrinks caches with slack and grows
// caches under pressure in proportion to their hit rate.
type HitRatePolicy = manager.HitRatePolicy

// DefaultPolicy returns the HitRatePolicy used when no policy is configured.
func DefaultPolicy() *HitRatePolicy { return manager.DefaultPolicy() }

// Guard pins the current term. Generations retired at or after that term are
// not freed until the guard is released. Cache operations take their own
// guards; an explicit guard is only needed to keep several operations on one
// consistent set of tables.
type Guard = term.Guard

// Manager owns the shared memory budget and every cache opened from it.
//
// Manager is safe for concurrent use.
type Manager struct {
	m      *manager.Manager
	logger *Logger
}

// New creates a Manager. If cfg.RebalanceInterval is positive, the rebalancer
// starts immediately.
func New(cfg Config, optFns ...Option) (*Manager, error) {
	mc, err := cfg.managerConfig()
	if err != nil {
		return nil, err
	}

	o := applyOptions(optFns)

	m, err := manager.New(mc, o.managerOptions()...)
	if err != nil {
		return nil, err
	}

	return &Manager{m: m, logger: o.logger}, nil
}

// Open creates a cache with the given initial quota in bytes.
//
// A quota below MinCacheQuotaBytes is raised to it. A quota above the
// remaining budget is cut down to the remainder if that still covers the
// minimum, otherwise ErrBudgetExhausted is returned.
func (m *Manager) Open(name string, quota int64) (*Cache, error) {
	c, err := m.m.Open(name, quota)
	if err != nil {
		m.logger.LogOpen(context.Background(), name, quota, err)
		return nil, err
	}
	return m.wrap(c), nil
}

// Cache returns the open cache with the given name.
func (m *Manager) Cache(name string) (*Cache, bool) {
	c, ok := m.m.Lookup(name)
	if !ok {
		return nil, false
	}
	return m.wrap(c), true
}

func (m *Manager) wrap(c *cache.Cache) *Cache {
	return &Cache{c: c, mgr: m, logger: m.logger.WithCache(c.Name())}
}

// TotalMemoryBudget returns the budget shared by all caches.
func (m *Manager) TotalMemoryBudget() int64 { return m.m.TotalMemoryBudget() }

// AcquireGuard pins the current term until the guard is released.
func (m *Manager) AcquireGuard() Guard { return m.m.Terms().Acquire() }

// Stats returns a snapshot of all open caches and the budget.
func (m *Manager) Stats() Stats { return m.m.Stats() }

// Rebalance runs one rebalance tick synchronously. It returns false if the
// tick was skipped because another tick is running or the manager is closed.
func (m *Manager) Rebalance(ctx context.Context) (bool, error) {
	return m.m.Rebalance(ctx)
}

// Reclaim runs one reclamation pass and returns the number of generations
// freed and the number still waiting for outstanding guards.
func (m *Manager) Reclaim() (freed, deferred int) { return m.m.Reclaim() }

// Close stops the rebalancer, closes every cache and waits until all memory
// has been reclaimed or ctx is done.
func (m *Manager) Close(ctx context.Context) error {
	if err := m.m.Close(ctx); err != nil {
		return fmt.Errorf("kvcache: %w", err)
	}
	return nil
}

// Cache is a named logical cache. Keys and values are opaque byte slices;
// both are copied on insert.
//
// Cache is safe for concurrent use.
type Cache struct {
	c      *cache.Cache
	mgr    *Manager
	logger *Logger
}

// Name returns the cache name.
func (c *Cache) Name() string { return c.c.Name() }

// Lookup returns the value stored under key. A miss is not an error.
// The returned slice must not be modified.
func (c *Cache) Lookup(key []byte) ([]byte, bool, error) {
	return c.c.Lookup(key)
}

// Insert stores value under key, evicting older entries if the cache is at
// its quota. An entry that could never fit is rejected with a *QuotaError.
func (c *Cache) Insert(key, value []byte) (InsertResult, error) {
	res, err := c.c.Insert(key, value)
	c.logger.LogInsert(context.Background(), res, err)
	return res, err
}

// Remove deletes key and reports whether it was present.
func (c *Cache) Remove(key []byte) (bool, error) {
	return c.c.Remove(key)
}

// Resize sets the quota of the cache within the manager budget. It reports
// whether the change was large enough to migrate the table.
func (c *Cache) Resize(quota int64) (bool, error) {
	return c.mgr.m.Resize(c.c, quota)
}

// Stats returns a snapshot of the cache.
func (c *Cache) Stats() CacheStats { return c.c.Stats() }

// Close closes the cache and returns immediately. Its memory and quota are
// released once no guard older than the close remains.
func (c *Cache) Close() error {
	err := c.mgr.m.CloseCache(c.c)
	c.logger.LogClose(context.Background(), err)
	return err
}
