package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kvcache/internal/cache"
	"github.com/hupe1980/kvcache/internal/resource"
	"github.com/hupe1980/kvcache/internal/term"
)

// Observer receives cache and rebalance events.
type Observer interface {
	cache.Observer
	OnRebalance(duration time.Duration, changed int)
}

// NoopObserver is a no-op implementation of Observer.
type NoopObserver struct{}

func (NoopObserver) OnLookup(string, bool)                     {}
func (NoopObserver) OnInsert(string, cache.InsertResult)       {}
func (NoopObserver) OnEviction(string, int64)                  {}
func (NoopObserver) OnMigration(string, time.Duration, uint64) {}
func (NoopObserver) OnRebalance(time.Duration, int)            {}

const (
	stateIdle int32 = iota
	stateRebalancing
)

// drainPoll is the reclaim retry interval while Close waits for caches.
const drainPoll = 5 * time.Millisecond

// Stats is a point-in-time snapshot of the manager.
type Stats struct {
	// Caches holds one entry per open cache, sorted by name.
	Caches []cache.Stats
	// Closing is the number of closed caches not yet fully reclaimed.
	Closing       int
	TotalBudget   int64
	TotalReserved int64
	TotalUsed     int64
	Term          uint64
}

// Manager owns the term tracker, the memory budget, the cache registry and
// the rebalancer.
type Manager struct {
	cfg      Config
	terms    *term.Tracker
	res      *resource.Controller
	logger   *slog.Logger
	observer Observer
	policy   Policy
	now      func() time.Time

	mu      sync.RWMutex
	caches  map[uint64]*cache.Cache
	names   map[string]uint64
	closing []*cache.Cache
	nextID  uint64

	// budgetMu serializes quota reservations so the budget has one writer
	// at a time.
	budgetMu sync.Mutex
	reserved map[uint64]int64

	state   atomic.Int32
	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a manager and starts the rebalancer if an interval is set.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:   cfg,
		terms: term.NewTracker(),
		res: resource.NewController(resource.Config{
			MemoryBudgetBytes:      cfg.TotalMemoryBudgetBytes,
			MaxBackgroundWorkers:   int64(cfg.MaxConcurrentMigrations),
			MigrationBucketsPerSec: cfg.MigrationBucketsPerSecond,
		}),
		logger:   slog.Default(),
		observer: NoopObserver{},
		policy:   DefaultPolicy(),
		now:      time.Now,
		caches:   make(map[uint64]*cache.Cache),
		names:    make(map[string]uint64),
		reserved: make(map[uint64]int64),
		closeCh:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(m)
	}

	if cfg.RebalanceInterval > 0 {
		m.wg.Add(1)
		goSafe(m.logger, m.runRebalancer)
	}

	return m, nil
}

// Config returns the manager configuration.
func (m *Manager) Config() Config { return m.cfg }

// Terms returns the shared term tracker.
func (m *Manager) Terms() *term.Tracker { return m.terms }

// TotalMemoryBudget returns the budget shared by all caches.
func (m *Manager) TotalMemoryBudget() int64 { return m.res.Budget() }

// Open creates a cache with the given initial quota. A quota below the
// configured minimum is raised to it; a quota above the remaining budget is
// cut down to the remainder if that is at least the minimum.
func (m *Manager) Open(name string, quota int64) (*cache.Cache, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("cache name must not be empty")
	}
	if quota < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuota, quota)
	}
	quota = max(quota, m.cfg.MinCacheQuotaBytes)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if _, ok := m.names[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	granted, err := m.reserveInitial(quota)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", name, err)
	}

	m.nextID++
	id := m.nextID
	buckets := TableSize(granted, m.cfg.EstimatedEntrySize, m.cfg.SlotsPerBucket, m.cfg.TargetLoadFactor)

	c, err := cache.New(cache.Options{
		Name:           name,
		ID:             id,
		Quota:          granted,
		Buckets:        buckets,
		SlotsPerBucket: m.cfg.SlotsPerBucket,
		Compression:    m.cfg.Compression,
		Terms:          m.terms,
		Resources:      m.res,
		Logger:         m.logger,
		Observer:       m.observer,
	})
	if err != nil {
		m.res.ReleaseQuota(granted)
		return nil, err
	}

	m.budgetMu.Lock()
	m.reserved[id] = granted
	m.budgetMu.Unlock()

	m.caches[id] = c
	m.names[name] = id

	m.logger.Info("cache opened",
		"cache", name,
		"id", id,
		"quota", granted,
		"buckets", buckets,
	)
	return c, nil
}

func (m *Manager) reserveInitial(quota int64) (int64, error) {
	m.budgetMu.Lock()
	defer m.budgetMu.Unlock()

	err := m.res.ReserveQuota(quota)
	if err == nil {
		return quota, nil
	}
	if !errors.Is(err, resource.ErrBudgetExhausted) {
		return 0, err
	}

	rest := m.res.Available()
	if rest < m.cfg.MinCacheQuotaBytes {
		return 0, err
	}
	if err := m.res.ReserveQuota(rest); err != nil {
		return 0, err
	}
	return rest, nil
}

// Lookup returns the open cache with the given name.
func (m *Manager) Lookup(name string) (*cache.Cache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.names[name]
	if !ok {
		return nil, false
	}
	return m.caches[id], true
}

// CloseCache closes c and removes it from the registry. Its quota returns
// to the budget once every generation has been reclaimed.
func (m *Manager) CloseCache(c *cache.Cache) error {
	m.mu.Lock()
	if m.caches[c.ID()] != c {
		m.mu.Unlock()
		if c.Closed() {
			return cache.ErrCacheClosed
		}
		return fmt.Errorf("%w: %q", ErrUnknownCache, c.Name())
	}
	delete(m.caches, c.ID())
	delete(m.names, c.Name())
	m.closing = append(m.closing, c)
	m.mu.Unlock()

	if err := c.Close(); err != nil {
		return err
	}

	m.Reclaim()
	return nil
}

// Reclaim runs one reclamation pass over all caches. It returns the number of
// generations freed and the number still waiting for quiescence or copying.
func (m *Manager) Reclaim() (freed, deferred int) {
	m.mu.RLock()
	open := make([]*cache.Cache, 0, len(m.caches))
	for _, c := range m.caches {
		open = append(open, c)
	}
	closing := slices.Clone(m.closing)
	m.mu.RUnlock()

	for _, c := range open {
		f, d := c.Reclaim()
		freed += f
		deferred += d
	}

	var drained []*cache.Cache
	for _, c := range closing {
		f, d := c.Reclaim()
		freed += f
		deferred += d
		if c.Drained() {
			drained = append(drained, c)
		}
	}

	if len(drained) > 0 {
		m.release(drained)
	}
	return freed, deferred
}

// release returns the quotas of fully reclaimed caches to the budget.
func (m *Manager) release(drained []*cache.Cache) {
	m.mu.Lock()
	m.closing = slices.DeleteFunc(m.closing, func(c *cache.Cache) bool {
		return slices.Contains(drained, c)
	})
	m.mu.Unlock()

	m.budgetMu.Lock()
	defer m.budgetMu.Unlock()

	for _, c := range drained {
		quota, ok := m.reserved[c.ID()]
		if !ok {
			continue
		}
		delete(m.reserved, c.ID())
		m.res.ReleaseQuota(quota)

		m.logger.Info("cache reclaimed", "cache", c.Name(), "quota", quota)
	}
}

// Stats returns a snapshot of all open caches and the budget.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	caches := make([]*cache.Cache, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	closing := len(m.closing)
	m.mu.RUnlock()

	s := Stats{
		Caches:        make([]cache.Stats, 0, len(caches)),
		Closing:       closing,
		TotalBudget:   m.res.Budget(),
		TotalReserved: m.res.Reserved(),
		Term:          m.terms.Current(),
	}
	for _, c := range caches {
		cs := c.Stats()
		s.TotalUsed += cs.UsedBytes
		s.Caches = append(s.Caches, cs)
	}
	slices.SortFunc(s.Caches, func(a, b cache.Stats) int {
		return strings.Compare(a.Name, b.Name)
	})
	return s
}

// Close stops the rebalancer, closes every cache and waits until all
// generations have been reclaimed or ctx is done.
func (m *Manager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrManagerClosed
	}

	m.cancel()
	close(m.closeCh)
	m.wg.Wait()

	m.mu.Lock()
	all := make([]*cache.Cache, 0, len(m.caches)+len(m.closing))
	for id, c := range m.caches {
		m.closing = append(m.closing, c)
		delete(m.caches, id)
		delete(m.names, c.Name())
	}
	all = append(all, m.closing...)
	m.mu.Unlock()

	for _, c := range all {
		_ = c.Close()
	}

	// Background copiers exit once their cache context is cancelled.
	var g errgroup.Group
	for _, c := range all {
		g.Go(func() error {
			c.Wait()
			return nil
		})
	}
	_ = g.Wait()

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for {
		m.Reclaim()

		m.mu.RLock()
		left := len(m.closing)
		m.mu.RUnlock()
		if left == 0 {
			m.logger.Info("manager closed", "term", m.terms.Current())
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("close manager: %d caches not reclaimed: %w", left, ctx.Err())
		case <-ticker.C:
		}
	}
}
