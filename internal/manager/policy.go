package manager

// CacheUsage is the per-cache input of a rebalance decision.
type CacheUsage struct {
	ID           uint64
	Name         string
	UsedBytes    int64
	AllowedBytes int64

	// Hits and Misses count lookups since the previous rebalance.
	Hits   uint64
	Misses uint64
}

// HitRate returns the windowed hit rate, or 0 without lookups.
func (u CacheUsage) HitRate() float64 {
	total := u.Hits + u.Misses
	if total == 0 {
		return 0
	}
	return float64(u.Hits) / float64(total)
}

// Policy computes new cache quotas.
type Policy interface {
	// Allocate returns the new quota of every cache, in the order of usage.
	// budget <= 0 means unlimited. The sum of the returned quotas must not
	// exceed budget.
	Allocate(budget, minQuota int64, usage []CacheUsage) []int64
}

// HitRatePolicy shrinks caches with a lot of slack and grows caches under
// pressure in proportion to their hit rate.
type HitRatePolicy struct {
	// ShrinkBelow is the used/allowed ratio below which a cache shrinks.
	ShrinkBelow float64
	// GrowAbove is the used/allowed ratio at or above which a cache grows.
	GrowAbove float64
	// Headroom is the factor applied to used bytes when shrinking.
	Headroom float64
}

// DefaultPolicy returns the default hit-rate policy.
func DefaultPolicy() *HitRatePolicy {
	return &HitRatePolicy{
		ShrinkBelow: 0.5,
		GrowAbove:   0.8,
		Headroom:    1.25,
	}
}

// Allocate implements Policy.
//
// A cache using less than ShrinkBelow of its quota shrinks to
// max(minQuota, used*Headroom). A cache using at least GrowAbove of its quota
// asks for quota*hitRate more. Growth requests are scaled down
// proportionally when the budget left after shrinking cannot cover them. A
// cache whose result would fall below minQuota keeps its previous quota.
func (p *HitRatePolicy) Allocate(budget, minQuota int64, usage []CacheUsage) []int64 {
	out := make([]int64, len(usage))
	growth := make([]int64, len(usage))

	var committed, wanted int64
	for i, u := range usage {
		out[i] = u.AllowedBytes

		switch {
		case float64(u.UsedBytes) < float64(u.AllowedBytes)*p.ShrinkBelow:
			target := max(minQuota, int64(float64(u.UsedBytes)*p.Headroom))
			if target < u.AllowedBytes {
				out[i] = target
			}
		case float64(u.UsedBytes) >= float64(u.AllowedBytes)*p.GrowAbove:
			growth[i] = int64(float64(u.AllowedBytes) * u.HitRate())
			wanted += growth[i]
		}

		committed += out[i]
	}

	if wanted > 0 && budget > 0 {
		available := max(budget-committed, 0)
		if wanted > available {
			scale := float64(available) / float64(wanted)
			for i := range growth {
				growth[i] = int64(float64(growth[i]) * scale)
			}
		}
	}

	for i, u := range usage {
		out[i] += growth[i]
		if out[i] < minQuota {
			out[i] = u.AllowedBytes
		}
	}
	return out
}
