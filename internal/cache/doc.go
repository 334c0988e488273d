// Package cache implements the logical cache front-end.
//
// # Generations
//
// A Cache owns an ordered list of table generations: exactly one current
// generation that takes inserts and zero or more draining generations left
// behind by migrations or by Close. Draining generations stay valid lookup
// and removal targets until the term tracker certifies that no guard older
// than their retire term remains; only then are they freed.
//
// # Migration
//
// Resizing installs a new current table and copies entries from the old one
// eagerly (a rate-limited background worker) and lazily (an insert first
// migrates the source buckets feeding its target bucket). A migrated bucket
// is sealed: it keeps its entries as shadows so lookups racing the copy
// never miss, but rejects new inserts.
//
// # Accounting
//
// Every logical entry is charged exactly once to the cache's Metadata, using
// the stored (possibly compressed) size. Inserts over quota evict instead of
// rejecting; only an entry larger than the whole quota is refused.
package cache
