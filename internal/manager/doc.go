// Package manager owns the shared state of all logical caches: the term
// tracker, the global memory budget, the cache registry and the rebalancer.
//
// The rebalancer periodically reads each cache's windowed hit rate, asks the
// configured Policy for new quotas, applies shrinks before grows so the
// budget is never oversubscribed, and migrates caches whose quota changed by
// more than the migration threshold. Closed caches stay on a closing list
// until every generation has been reclaimed; only then is their quota
// returned to the budget.
package manager
