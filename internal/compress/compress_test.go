package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	compressible := bytes.Repeat([]byte("page-corpus "), 1000)
	random := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(random)

	for _, typ := range []Type{None, LZ4, ZSTD} {
		for name, data := range map[string][]byte{"compressible": compressible, "random": random, "empty": {}} {
			t.Run(typ.String()+"/"+name, func(t *testing.T) {
				block, err := Encode(data, typ)
				require.NoError(t, err)
				if typ != None && name == "compressible" {
					assert.Less(t, len(block), len(data))
				}
				out, err := Decode(block, typ)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(out))
				assert.True(t, bytes.Equal(data, out))
			})
		}
	}
}

func TestDecodeCorrupt(t *testing.T) {
	block, err := Encode(bytes.Repeat([]byte("x"), 512), ZSTD)
	require.NoError(t, err)

	_, err = Decode(block[:4], ZSTD)
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(block[:len(block)-1], ZSTD)
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(block, None)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("brotli")
	require.Error(t, err)
}
