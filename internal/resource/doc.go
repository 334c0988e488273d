// Package resource implements the Controller that owns the global memory
// budget and the background work limits of a cache manager.
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                         Controller                          │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Memory Budget  │  Background     │  Migration Rate         │
//	│  (fail-fast)    │  Workers (sem)  │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  ReserveQuota   │  AcquireBack-   │  AcquireMigration       │
//	│  ReleaseQuota   │  ground         │                         │
//	│  Available      │  TryAcquire     │                         │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// # Memory Budget
//
// Cache quotas are reservations against the budget. Reservation is
// non-blocking and fails with ErrBudgetExhausted, so the budget can never be
// oversubscribed:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryBudgetBytes: 1 << 30, // 1GB shared by all caches
//	})
//
//	if err := rc.ReserveQuota(64 << 20); err != nil {
//	    // ErrBudgetExhausted - caller keeps the previous quota
//	}
//	defer rc.ReleaseQuota(64 << 20)
//
// # Background Workers
//
// Limits how many table migrations copy buckets concurrently:
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// # Migration Rate
//
// A token bucket throttles background copying so migrations do not starve
// foreground lookups of bucket locks.
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
