package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a value codec.
type Type uint8

const (
	// None stores values uncompressed and without header.
	None Type = iota
	// LZ4 uses LZ4 block compression.
	LZ4
	// ZSTD uses ZSTD compression.
	ZSTD
)

const headerSize = 8

var (
	// ErrCorrupt is returned when an encoded value cannot be decoded.
	ErrCorrupt = errors.New("compress: corrupt value")

	// ErrTooLarge is returned for values that do not fit the header.
	ErrTooLarge = errors.New("compress: value too large")
)

// ZSTD encoder/decoder pools
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// ParseType parses "none", "lz4" or "zstd" (case-insensitive; empty is none).
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compress.Type(%d)", uint8(t))
	}
}

// Encode returns the stored representation of data.
func Encode(t Type, data []byte) ([]byte, error) {
	if t == None {
		return data, nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, ErrTooLarge
	}

	var compressed []byte
	var err error

	switch t {
	case LZ4:
		compressed, err = encodeLZ4(data)
	case ZSTD:
		compressed = encodeZSTD(data)
	default:
		return nil, fmt.Errorf("unknown compression %d", t)
	}
	if err != nil {
		return nil, err
	}

	// Keep the raw payload unless compression saves at least 10%.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, headerSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[headerSize:], data)
		return out, nil
	}

	out := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[headerSize:], compressed)
	return out, nil
}

// Decode reverses Encode. For None the input is returned unchanged.
func Decode(t Type, data []byte) ([]byte, error) {
	if t == None {
		return data, nil
	}
	if len(data) < headerSize {
		return nil, ErrCorrupt
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])
	payload := data[headerSize:]

	if compressedSize == 0 {
		if uint64(len(payload)) < uint64(uncompressedSize) {
			return nil, ErrCorrupt
		}
		return payload[:uncompressedSize], nil
	}
	if uint64(len(payload)) < uint64(compressedSize) {
		return nil, ErrCorrupt
	}
	payload = payload[:compressedSize]
	result := make([]byte, uncompressedSize)

	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(payload, result)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(n) != uncompressedSize {
			return nil, ErrCorrupt
		}
		return result, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(payload, result[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, ErrCorrupt
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unknown compression %d", t)
	}
}

func encodeLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return compressed[:n], nil
}

func encodeZSTD(data []byte) []byte {
	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)

	return enc.EncodeAll(data, nil)
}
