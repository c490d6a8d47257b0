// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4/v4"
)

// fastlzCompressor stores blocks in the LZ4 block format, which has no framing:
// the decoded length comes from the block record.
type fastlzCompressor struct{}

var _ Compressor = fastlzCompressor{}

func (fastlzCompressor) Algorithm() Algorithm { return FastLZ }

func (fastlzCompressor) Compress(dst, src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	if cap(dst) < bound {
		dst = make([]byte, bound)
	}
	dst = dst[:bound]
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fastlz")
	}
	if n == 0 && len(src) > 0 {
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}

func (fastlzCompressor) Close() {}

type fastlzDecompressor struct{}

var _ Decompressor = fastlzDecompressor{}

func (fastlzDecompressor) DecompressInto(dst, src []byte) error {
	if len(src) == 0 {
		return checkDecodedLen(FastLZ, 0, len(dst))
	}
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		// The block format cannot tell a corrupt stream from one that needs
		// more room. Probe with a larger buffer to tell them apart.
		probe := make([]byte, 2*len(dst)+64<<10)
		if m, perr := lz4.UncompressBlock(src, probe); perr == nil && m > len(dst) {
			return checkDecodedLen(FastLZ, m, len(dst))
		}
		return errors.Wrapf(ErrCorruptInput, "fastlz: %v", err)
	}
	return checkDecodedLen(FastLZ, n, len(dst))
}

func (fastlzDecompressor) Close() {}
