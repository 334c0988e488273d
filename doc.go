// Package kvcache provides an embedded, memory-bounded cache subsystem for Go.
//
// A Manager owns one global memory budget. Any number of named caches are
// opened from it, and a background rebalancer moves quota between them based
// on observed hit rates. Cache tables are resized by migrating to a new
// generation while lookups and inserts continue; old generations are freed
// only once no reader that could still see them remains.
//
// # Quick Start
//
//	cfg := kvcache.DefaultConfig()
//	cfg.TotalMemoryBudgetBytes = 512 << 20
//
//	m, err := kvcache.New(cfg, kvcache.WithLogger(kvcache.NewJSONLogger(slog.LevelInfo)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close(context.Background())
//
//	blocks, _ := m.Open("blocks", 64<<20)
//	blocks.Insert([]byte("block:42"), payload)
//	v, ok, _ := blocks.Lookup([]byte("block:42"))
//
// # Memory Accounting
//
// Every entry is charged its key size, its stored value size and a fixed
// per-entry overhead. An insert that would exceed the cache quota evicts
// older entries instead of failing; only an entry larger than the whole
// quota is rejected with ErrCapacityRejected.
//
// # Quiescence
//
// Each cache operation runs under a Guard stamped with the current term.
// Retiring a generation advances the term, and the generation is freed once
// every guard from its term or earlier has been released. Reclamation runs on
// every rebalance tick and can be driven explicitly with Manager.Reclaim.
//
// # Configuration
//
// Config can be built in code, loaded from YAML with LoadConfig, and
// overridden from KVCACHE_* environment variables. Byte sizes accept human
// readable values such as "512MiB".
package kvcache
