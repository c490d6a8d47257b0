// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"github.com/cockroachdb/errors"
	"github.com/minio/minlz"
)

type minlzCompressor struct {
	level int
}

var _ Compressor = (*minlzCompressor)(nil)

func (c *minlzCompressor) Algorithm() Algorithm { return MinLZ }

func (c *minlzCompressor) Compress(dst, src []byte) ([]byte, error) {
	// MinLZ cannot encode blocks greater than 8MB. Fall back to Snappy in those
	// cases; MinLZ decodes Snappy blocks.
	if len(src) > minlz.MaxBlockSize {
		return (snappyCompressor{}).Compress(dst, src)
	}
	compressed, err := minlz.Encode(dst, src, c.level)
	if err != nil {
		return nil, errors.Wrap(err, "minlz")
	}
	return compressed, nil
}

func (c *minlzCompressor) Close() {}

var (
	minlzCompressorFastest  = &minlzCompressor{level: minlz.LevelFastest}
	minlzCompressorBalanced = &minlzCompressor{level: minlz.LevelBalanced}
	minlzCompressorSmallest = &minlzCompressor{level: minlz.LevelSmallest}
)

func getMinlzCompressor(level int) Compressor {
	switch level {
	case minlz.LevelBalanced:
		return minlzCompressorBalanced
	case minlz.LevelSmallest:
		return minlzCompressorSmallest
	default:
		return minlzCompressorFastest
	}
}

type minlzDecompressor struct{}

var _ Decompressor = minlzDecompressor{}

func (minlzDecompressor) DecompressInto(dst, src []byte) error {
	n, err := minlz.DecodedLen(src)
	if err != nil {
		return errors.Wrapf(ErrCorruptInput, "minlz: %v", err)
	}
	if err := checkDecodedLen(MinLZ, n, len(dst)); err != nil {
		return err
	}
	result, err := minlz.Decode(dst, src)
	if err != nil {
		return errors.Wrapf(ErrCorruptInput, "minlz: %v", err)
	}
	if len(result) != len(dst) || (len(result) > 0 && &result[0] != &dst[0]) {
		return errors.Wrapf(ErrCorruptInput, "minlz: decompressed into unexpected buffer")
	}
	return nil
}

func (minlzDecompressor) Close() {}
