package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	mu   sync.Mutex
	pcg  *rand.PCG
	rand *rand.Rand
	seed uint64
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed uint64) *RNG {
	pcg := rand.NewPCG(seed, seed)
	return &RNG{
		pcg:  pcg,
		rand: rand.New(pcg),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pcg.Seed(r.seed, r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// IntN returns a non-negative pseudo-random number in [0,n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Fill fills dst with random bytes.
// Locks only once per call (preferred over calling Uint64 in a loop).
func (r *RNG) Fill(dst []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < len(dst); i += 8 {
		v := r.rand.Uint64()
		for j := i; j < len(dst) && j < i+8; j++ {
			dst[j] = byte(v)
			v >>= 8
		}
	}
}

// Value returns size random bytes.
func (r *RNG) Value(size int) []byte {
	v := make([]byte, size)
	r.Fill(v)
	return v
}

// CompressibleValue returns size bytes of repeating text.
func CompressibleValue(size int) []byte {
	v := make([]byte, size)
	for i := range v {
		v[i] = byte('a' + i%26)
	}
	return v
}

// Key returns the canonical test key for i.
func Key(i int) []byte {
	return AppendKey(nil, i)
}

// AppendKey appends the canonical test key for i to dst.
func AppendKey(dst []byte, i int) []byte {
	return fmt.Appendf(dst, "key-%08d", i)
}

// Zipf samples indices in [0, n) with P(k) ∝ 1/(k+1)^s.
// s=1.0 gives standard Zipf, larger values give a heavier head.
type Zipf struct {
	cdf []float64
}

// NewZipf precomputes the cumulative distribution over n indices.
func NewZipf(n int, s float64) *Zipf {
	n = max(n, 1)
	cdf := make([]float64, n)

	var sum float64
	for k := range n {
		sum += 1.0 / math.Pow(float64(k+1), s)
		cdf[k] = sum
	}
	return &Zipf{cdf: cdf}
}

// N returns the number of indices.
func (z *Zipf) N() int { return len(z.cdf) }

// Sample draws one index using r.
func (z *Zipf) Sample(r *RNG) int {
	u := r.Float64() * z.cdf[len(z.cdf)-1]
	i := sort.SearchFloat64s(z.cdf, u)
	return min(i, len(z.cdf)-1)
}

// Samples draws count indices.
func (z *Zipf) Samples(r *RNG, count int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = z.Sample(r)
	}
	return out
}
