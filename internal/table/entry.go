package table

import "bytes"

// EntryOverhead approximates the per-entry bookkeeping cost in bytes
// (entry header, slice headers, slot).
const EntryOverhead = 48

// Entry is an immutable cached key/value pair.
// Value holds the stored (possibly compressed) representation.
type Entry struct {
	Hash  uint64
	Key   []byte
	Value []byte
}

// NewEntry creates an entry.
func NewEntry(hash uint64, key, value []byte) *Entry {
	return &Entry{Hash: hash, Key: key, Value: value}
}

// Size returns the number of bytes charged for the entry.
func (e *Entry) Size() int64 {
	return SizeOf(len(e.Key), len(e.Value))
}

// SizeOf returns the charge of an entry with the given key and value lengths.
func SizeOf(keyLen, valueLen int) int64 {
	return int64(keyLen) + int64(valueLen) + EntryOverhead
}

func (e *Entry) matches(hash uint64, key []byte) bool {
	return e.Hash == hash && bytes.Equal(e.Key, key)
}
