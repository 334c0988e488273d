// Package compress provides the optional value codecs of the cache.
//
// Values can be stored as-is (None) or compressed with LZ4 (fast, good for hot
// blocks) or ZSTD (better ratio). Compressed values carry an 8-byte header:
//
//	[UncompressedSize uint32][CompressedSize uint32][Data...]
//
// A CompressedSize of 0 means the payload is stored raw because compression
// did not save at least 10%. The cache charges the encoded size against its
// quota, so compression directly increases the number of entries that fit.
package compress
