// Package table implements the slot-array buckets and power-of-two tables
// that hold cache entries.
//
// A Table is an immutable-shape array of Buckets addressed by the low bits of
// the key hash. Each Bucket owns a fixed number of slots and a mutex scoped to
// itself; no bucket operation waits on anything outside its own lock.
//
// # Aging
//
// Each slot carries a small saturating counter instead of LRU list links. A hit
// increments it; EvictOneAndInsert picks the occupied slot with the lowest
// counter (lowest index wins ties) and decays every other slot by one, so cold
// entries eventually reach zero and become victims.
//
// # Sealing
//
// During a migration each source bucket is copied into the new table under its
// own lock and then sealed. A sealed bucket keeps serving Find and Remove (its
// entries are shadows of the migrated copies) but rejects inserts with
// ErrSealed so writers retry against the current table.
package table
