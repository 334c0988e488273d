// Package testutil provides deterministic workload helpers for kvcache.
//
// This package is intended for use in tests and benchmarks only.
//
// # Keys and Values
//
//	key := testutil.Key(42)              // "key-00000042"
//	rng := testutil.NewRNG(seed)
//	v := rng.Value(512)                  // random, incompressible
//	c := testutil.CompressibleValue(512) // repeating text
//
// # Skewed Access
//
//	z := testutil.NewZipf(10_000, 1.1)
//	i := z.Sample(rng) // index 0 is the most popular
package testutil
