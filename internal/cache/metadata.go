package cache

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metadata holds the per-cache accounting. Counters are updated with atomics
// on the hot path; approximate values under concurrency are acceptable.
type Metadata struct {
	allowed atomic.Int64
	used    atomic.Int64
	entries atomic.Int64

	hits       atomic.Uint64
	misses     atomic.Uint64
	inserts    atomic.Uint64
	rejections atomic.Uint64
	evictions  atomic.Uint64
	removals   atomic.Uint64
	migrations atomic.Uint64

	lastRebalance atomic.Int64

	// Hit/miss totals observed at the previous window boundary.
	windowMu     sync.Mutex
	windowHits   uint64
	windowMisses uint64
	windowRate   atomic.Uint64 // float64 bits of the last closed window
}

// Allowed returns the quota in bytes.
func (m *Metadata) Allowed() int64 { return m.allowed.Load() }

// Used returns the charged bytes.
func (m *Metadata) Used() int64 { return m.used.Load() }

// Entries returns the number of charged entries.
func (m *Metadata) Entries() int64 { return m.entries.Load() }

// Hits returns the lifetime hit count.
func (m *Metadata) Hits() uint64 { return m.hits.Load() }

// Misses returns the lifetime miss count.
func (m *Metadata) Misses() uint64 { return m.misses.Load() }

func (m *Metadata) setAllowed(bytes int64) { m.allowed.Store(bytes) }

func (m *Metadata) charge(bytes int64, entries int64) {
	m.used.Add(bytes)
	m.entries.Add(entries)
}

func (m *Metadata) discharge(bytes int64, entries int64) {
	m.used.Add(-bytes)
	m.entries.Add(-entries)
}

func (m *Metadata) overQuota() bool {
	return m.used.Load() > m.allowed.Load()
}

// HitRate returns hits/(hits+misses) over the cache lifetime, or 0 without
// lookups.
func (m *Metadata) HitRate() float64 {
	return ratio(m.hits.Load(), m.misses.Load())
}

// TakeWindow returns the hit and miss counts since the previous call and
// starts a new window.
func (m *Metadata) TakeWindow() (hits, misses uint64) {
	m.windowMu.Lock()
	defer m.windowMu.Unlock()

	h, ms := m.hits.Load(), m.misses.Load()
	hits, misses = h-m.windowHits, ms-m.windowMisses
	m.windowHits, m.windowMisses = h, ms
	m.windowRate.Store(math.Float64bits(ratio(hits, misses)))
	return hits, misses
}

// WindowHitRate returns the hit rate of the last window closed by
// TakeWindow.
func (m *Metadata) WindowHitRate() float64 {
	return math.Float64frombits(m.windowRate.Load())
}

// AverageEntrySize returns the mean charged entry size, or fallback when the
// cache is empty.
func (m *Metadata) AverageEntrySize(fallback int64) int64 {
	n := m.entries.Load()
	if n <= 0 {
		return fallback
	}
	avg := m.used.Load() / n
	if avg <= 0 {
		return fallback
	}
	return avg
}

// LastRebalance returns the time of the last quota decision.
func (m *Metadata) LastRebalance() time.Time {
	ns := m.lastRebalance.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// MarkRebalanced records a quota decision at t.
func (m *Metadata) MarkRebalanced(t time.Time) {
	m.lastRebalance.Store(t.UnixNano())
}

func ratio(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
