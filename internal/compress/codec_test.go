package compress

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"LZ4", LZ4, false},
		{" zstd ", ZSTD, false},
		{"snappy", None, true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, s string) Type {
	t.Helper()
	typ, err := ParseType(s)
	require.NoError(t, err)
	return typ
}

func TestEncodeDecode(t *testing.T) {
	compressible := bytes.Repeat([]byte("block-data-"), 512)
	random := make([]byte, 4096)
	_, _ = rand.Read(random)

	for _, typ := range []Type{None, LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			for _, in := range [][]byte{compressible, random, {}} {
				enc, err := Encode(typ, in)
				require.NoError(t, err)

				out, err := Decode(typ, enc)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(in, out))
			}
		})
	}
}

func TestEncode_ShrinksCompressibleData(t *testing.T) {
	in := bytes.Repeat([]byte{0xAB}, 64*1024)
	for _, typ := range []Type{LZ4, ZSTD} {
		enc, err := Encode(typ, in)
		require.NoError(t, err)
		assert.Less(t, len(enc), len(in)/4, typ.String())
	}
}

func TestEncode_IncompressibleStoredRaw(t *testing.T) {
	in := make([]byte, 1024)
	_, _ = rand.Read(in)

	enc, err := Encode(LZ4, in)
	require.NoError(t, err)
	assert.Len(t, enc, headerSize+len(in))
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode(LZ4, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorrupt)

	enc, err := Encode(ZSTD, bytes.Repeat([]byte("x"), 1000))
	require.NoError(t, err)
	_, err = Decode(ZSTD, enc[:len(enc)-3])
	assert.ErrorIs(t, err, ErrCorrupt)
}
