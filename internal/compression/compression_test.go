// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"bytes"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

var presets = []Setting{
	NoCompression,
	FastLZCompression,
	DeflateDefault,
	{Algorithm: Deflate, Level: 1},
	SnappyCompression,
	MinLZFastest,
	ZstdDefault,
}

func compressible(rng *rand.Rand, n int) []byte {
	words := [][]byte{[]byte("tape "), []byte("block "), []byte("filemark "), []byte("rewind ")}
	var b bytes.Buffer
	for b.Len() < n {
		b.Write(words[rng.IntN(len(words))])
	}
	return b.Bytes()[:n]
}

func TestCompressionRoundtrip(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	for _, s := range presets {
		t.Run(s.String(), func(t *testing.T) {
			for _, n := range []int{1, 100, 4 << 10, 64 << 10, 1 << 20} {
				payload := compressible(rng, n)
				// A randomly-sized buffer; Compress must grow it when needed.
				compressedBuf := make([]byte, rng.IntN(1<<10))
				c := GetCompressor(s)
				compressed, err := c.Compress(compressedBuf, payload)
				c.Close()
				if errors.Is(err, ErrIncompressible) {
					continue
				}
				require.NoError(t, err)
				require.Equal(t, s.Algorithm, c.Algorithm())

				got, err := Decompress(s.Algorithm, make([]byte, n), compressed, n)
				require.NoError(t, err)
				require.Equal(t, payload, got)
			}
		})
	}
}

func TestCompressionShrinksCompressibleData(t *testing.T) {
	defer leaktest.AfterTest(t)()
	rng := rand.New(rand.NewPCG(0, 1))
	payload := compressible(rng, 64<<10)
	for _, s := range presets[1:] {
		c := GetCompressor(s)
		compressed, err := c.Compress(nil, payload)
		c.Close()
		require.NoError(t, err)
		require.Less(t, len(compressed), len(payload)*3/4, "%s", s)
	}
}

func TestDecompressShortBuffer(t *testing.T) {
	defer leaktest.AfterTest(t)()
	rng := rand.New(rand.NewPCG(0, 2))
	payload := compressible(rng, 10000)
	for _, s := range presets {
		t.Run(s.String(), func(t *testing.T) {
			c := GetCompressor(s)
			compressed, err := c.Compress(nil, payload)
			c.Close()
			require.NoError(t, err)

			buf := make([]byte, 100)
			full, err := Decompress(s.Algorithm, buf, compressed, len(payload))
			require.NoError(t, err)
			require.Equal(t, payload, full)
			require.Equal(t, payload[:100], buf)
		})
	}
}

func TestDecompressionCauses(t *testing.T) {
	defer leaktest.AfterTest(t)()
	rng := rand.New(rand.NewPCG(0, 3))
	payload := compressible(rng, 8000)

	compress := func(s Setting) []byte {
		c := GetCompressor(s)
		defer c.Close()
		b, err := c.Compress(nil, payload)
		require.NoError(t, err)
		return b
	}

	t.Run("overrun", func(t *testing.T) {
		for _, s := range presets {
			_, err := Decompress(s.Algorithm, nil, compress(s), len(payload)-1)
			require.Error(t, err, "%s", s)
			require.True(t, errors.Is(err, ErrOverrun), "%s: %v", s, err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		for _, s := range []Setting{NoCompression, SnappyCompression, MinLZFastest, ZstdDefault, DeflateDefault} {
			_, err := Decompress(s.Algorithm, nil, compress(s), len(payload)+1)
			require.Error(t, err, "%s", s)
			require.True(t, errors.Is(err, ErrTruncated), "%s: %v", s, err)
		}
	})

	t.Run("missing-terminator", func(t *testing.T) {
		b := compress(DeflateDefault)
		_, err := Decompress(Deflate, nil, b[:len(b)/2], len(payload))
		require.True(t, errors.Is(err, ErrMissingTerminator), "%v", err)
	})

	t.Run("corrupt", func(t *testing.T) {
		garbage := make([]byte, 512)
		for i := range garbage {
			garbage[i] = byte(rng.Uint32())
		}
		for _, a := range []Algorithm{Deflate, Snappy, MinLZ, Zstd} {
			_, err := Decompress(a, nil, garbage, len(payload))
			require.Error(t, err, "%s", a)
			require.NotNil(t, Cause(err), "%s: %v", a, err)
		}
		_, err := Decompress(NumAlgorithms, nil, garbage, 10)
		require.True(t, errors.Is(err, ErrCorruptInput))
	})
}

func TestParseSetting(t *testing.T) {
	for _, s := range presets {
		got, err := ParseSetting(s.String())
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	got, err := ParseSetting("zstd")
	require.NoError(t, err)
	require.Equal(t, ZstdDefault, got)
	_, err = ParseSetting("lzo")
	require.Error(t, err)

	for a := None; a < NumAlgorithms; a++ {
		p, err := ParseAlgorithm(a.String())
		require.NoError(t, err)
		require.Equal(t, a, p)
	}
}
