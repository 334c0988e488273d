package kvcache_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hupe1980/kvcache"
)

// Example demonstrates opening a cache and reading back a value.
func Example() {
	cfg := kvcache.DefaultConfig()
	cfg.TotalMemoryBudgetBytes = 64 << 20
	cfg.RebalanceInterval = 0

	m, err := kvcache.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close(context.Background())

	blocks, err := m.Open("blocks", 1<<20)
	if err != nil {
		log.Fatal(err)
	}

	if _, err := blocks.Insert([]byte("block:1"), []byte("hello")); err != nil {
		log.Fatal(err)
	}

	v, ok, err := blocks.Lookup([]byte("block:1"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(ok, string(v))
	// Output: true hello
}

// Example_capacityRejected shows the result of inserting an entry larger
// than the whole cache quota.
func Example_capacityRejected() {
	cfg := kvcache.DefaultConfig()
	cfg.TotalMemoryBudgetBytes = 64 << 20
	cfg.RebalanceInterval = 0

	m, err := kvcache.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close(context.Background())

	small, err := m.Open("small", 0) // raised to MinCacheQuotaBytes
	if err != nil {
		log.Fatal(err)
	}

	res, err := small.Insert([]byte("big"), make([]byte, 128<<10))
	fmt.Println(res, errors.Is(err, kvcache.ErrCapacityRejected))
	// Output: rejected_over_quota true
}

// Example_metrics demonstrates collecting per-operation metrics.
func Example_metrics() {
	cfg := kvcache.DefaultConfig()
	cfg.TotalMemoryBudgetBytes = 64 << 20
	cfg.RebalanceInterval = 0

	metrics := &kvcache.BasicMetricsCollector{}
	m, err := kvcache.New(cfg, kvcache.WithMetricsCollector(metrics))
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close(context.Background())

	c, err := m.Open("results", 1<<20)
	if err != nil {
		log.Fatal(err)
	}
	_, _ = c.Insert([]byte("q1"), []byte("r1"))
	_, _, _ = c.Lookup([]byte("q1"))
	_, _, _ = c.Lookup([]byte("q2"))

	s := metrics.GetStats()
	fmt.Printf("lookups=%d hits=%d inserts=%d\n", s.LookupCount, s.LookupHits, s.InsertCount)
	// Output: lookups=2 hits=1 inserts=1
}
