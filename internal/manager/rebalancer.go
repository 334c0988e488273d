package manager

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kvcache/internal/cache"
)

func (m *Manager) runRebalancer() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.RebalanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closeCh:
			return
		case <-ticker.C:
			if _, err := m.Rebalance(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("rebalance failed", "error", err)
			}
			m.Reclaim()
		}
	}
}

// Rebalance runs one rebalance tick synchronously. It returns false if the
// tick was skipped because another tick is running or the manager is
// closing.
func (m *Manager) Rebalance(ctx context.Context) (bool, error) {
	if m.closed.Load() {
		m.logger.Debug("rebalance skipped", "reason", "closing")
		return false, nil
	}
	if !m.state.CompareAndSwap(stateIdle, stateRebalancing) {
		m.logger.Debug("rebalance skipped", "reason", "running")
		return false, nil
	}
	defer m.state.Store(stateIdle)

	start := m.now()

	m.mu.RLock()
	caches := make([]*cache.Cache, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.mu.RUnlock()

	usage := make([]CacheUsage, len(caches))
	for i, c := range caches {
		md := c.Metadata()
		hits, misses := md.TakeWindow()
		usage[i] = CacheUsage{
			ID:           c.ID(),
			Name:         c.Name(),
			UsedBytes:    md.Used(),
			AllowedBytes: md.Allowed(),
			Hits:         hits,
			Misses:       misses,
		}
	}

	quotas := m.policy.Allocate(m.cfg.TotalMemoryBudgetBytes, m.cfg.MinCacheQuotaBytes, usage)
	if len(quotas) != len(caches) {
		return true, fmt.Errorf("policy returned %d quotas for %d caches", len(quotas), len(caches))
	}

	var shrink, grow []int
	for i := range caches {
		switch {
		case quotas[i] < usage[i].AllowedBytes:
			shrink = append(shrink, i)
		case quotas[i] > usage[i].AllowedBytes:
			grow = append(grow, i)
		}
	}

	var changed, migrated atomic.Int64
	apply := func(idx []int) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.cfg.MaxConcurrentMigrations)

		for _, i := range idx {
			c, quota := caches[i], quotas[i]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				mig, err := m.resize(c, quota)
				switch {
				case errors.Is(err, cache.ErrCacheClosed):
					return nil
				case errors.Is(err, ErrBudgetExhausted):
					// Budget taken by a concurrent open; keep the old quota.
					m.logger.Debug("quota change deferred", "cache", c.Name(), "new_quota", quota)
					return nil
				case err != nil:
					return fmt.Errorf("resize cache %q: %w", c.Name(), err)
				}
				changed.Add(1)
				if mig {
					migrated.Add(1)
				}
				return nil
			})
		}
		return g.Wait()
	}

	// Shrinks first so the grows find the budget they were planned with.
	err := apply(shrink)
	if err == nil {
		err = apply(grow)
	}

	now := m.now()
	for _, c := range caches {
		c.Metadata().MarkRebalanced(now)
	}

	d := now.Sub(start)
	m.logger.Info("rebalance completed",
		"caches", len(caches),
		"changed", changed.Load(),
		"migrations", migrated.Load(),
		"duration", d,
	)
	m.observer.OnRebalance(d, int(changed.Load()))

	return true, err
}

// Resize changes the quota of c within the budget and migrates its table if
// the relative change exceeds the migration threshold. It reports whether a
// migration was started.
func (m *Manager) Resize(c *cache.Cache, quota int64) (bool, error) {
	if m.closed.Load() {
		return false, ErrManagerClosed
	}
	if quota < m.cfg.MinCacheQuotaBytes {
		return false, fmt.Errorf("%w: %d is below the minimum of %d", ErrInvalidQuota, quota, m.cfg.MinCacheQuotaBytes)
	}

	m.mu.RLock()
	registered := m.caches[c.ID()] == c
	m.mu.RUnlock()
	if !registered {
		if c.Closed() {
			return false, cache.ErrCacheClosed
		}
		return false, fmt.Errorf("%w: %q", ErrUnknownCache, c.Name())
	}

	migrated, err := m.resize(c, quota)
	if err == nil {
		c.Metadata().MarkRebalanced(m.now())
	}
	return migrated, err
}

func (m *Manager) resize(c *cache.Cache, quota int64) (bool, error) {
	old, err := m.setQuota(c, quota)
	if err != nil || old == quota {
		return false, err
	}

	m.logger.Info("quota changed",
		"cache", c.Name(),
		"old_quota", old,
		"new_quota", quota,
	)

	if relativeChange(old, quota) <= m.cfg.MigrationThreshold {
		return false, nil
	}

	avg := c.Metadata().AverageEntrySize(m.cfg.EstimatedEntrySize)
	buckets := TableSize(quota, avg, m.cfg.SlotsPerBucket, m.cfg.TargetLoadFactor)
	return c.Migrate(buckets)
}

// setQuota moves the reservation of c to quota and applies it. Growth is
// reserved before the cache sees it; shrinkage is released after the cache
// has evicted down to it.
func (m *Manager) setQuota(c *cache.Cache, quota int64) (int64, error) {
	m.budgetMu.Lock()
	defer m.budgetMu.Unlock()

	old, ok := m.reserved[c.ID()]
	if !ok {
		return 0, cache.ErrCacheClosed
	}
	delta := quota - old

	if delta > 0 {
		if err := m.res.ReserveQuota(delta); err != nil {
			return old, err
		}
	}

	if err := c.SetQuota(quota); err != nil {
		if delta > 0 {
			m.res.ReleaseQuota(delta)
		}
		return old, err
	}

	if delta < 0 {
		m.res.ReleaseQuota(-delta)
	}
	m.reserved[c.ID()] = quota
	return old, nil
}
