package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned when a quota reservation would exceed the
// memory budget.
var ErrBudgetExhausted = errors.New("memory budget exhausted")

// Config holds resource limits.
type Config struct {
	// MemoryBudgetBytes is the total memory distributed as cache quotas.
	// If 0, no limit is enforced (only tracking).
	MemoryBudgetBytes int64

	// MaxBackgroundWorkers is the maximum number of concurrent migration copiers.
	// If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// MigrationBucketsPerSec limits how fast background copiers move buckets.
	// If 0, unlimited.
	MigrationBucketsPerSec int64
}

// Controller manages the global memory budget and background work.
type Controller struct {
	cfg Config

	// Budget
	budgetSem *semaphore.Weighted // nil if unlimited
	reserved  atomic.Int64

	// Concurrency
	bgSem *semaphore.Weighted

	// Migration throughput
	limiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.MemoryBudgetBytes > 0 {
		c.budgetSem = semaphore.NewWeighted(cfg.MemoryBudgetBytes)
	}

	if cfg.MigrationBucketsPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MigrationBucketsPerSec), int(cfg.MigrationBucketsPerSec))
	}

	return c
}

// ReserveQuota reserves bytes of the budget for a cache quota.
// Non-blocking: returns ErrBudgetExhausted if the budget would be exceeded.
func (c *Controller) ReserveQuota(bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.budgetSem != nil {
		if !c.budgetSem.TryAcquire(bytes) {
			return ErrBudgetExhausted
		}
	}

	c.reserved.Add(bytes)
	return nil
}

// ReleaseQuota returns reserved bytes to the budget.
func (c *Controller) ReleaseQuota(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.budgetSem != nil {
		c.budgetSem.Release(bytes)
	}
	c.reserved.Add(-bytes)
}

// Reserved returns the bytes currently reserved as cache quotas.
func (c *Controller) Reserved() int64 {
	if c == nil {
		return 0
	}
	return c.reserved.Load()
}

// Budget returns the configured budget in bytes (0 if unlimited).
func (c *Controller) Budget() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryBudgetBytes
}

// Available returns the unreserved part of the budget.
// It returns -1 when the budget is unlimited.
func (c *Controller) Available() int64 {
	if c == nil || c.cfg.MemoryBudgetBytes <= 0 {
		return -1
	}
	return max(c.cfg.MemoryBudgetBytes-c.reserved.Load(), 0)
}

// AcquireBackground reserves a background worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a background worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground releases a background worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgSem.Release(1)
}

// AcquireMigration waits until the migration rate allows copying n buckets.
func (c *Controller) AcquireMigration(ctx context.Context, n int) error {
	if c == nil || c.limiter == nil {
		return nil
	}
	return c.limiter.WaitN(ctx, min(n, c.limiter.Burst()))
}
