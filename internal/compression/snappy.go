// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
)

type snappyCompressor struct{}

var _ Compressor = snappyCompressor{}

func (snappyCompressor) Algorithm() Algorithm { return Snappy }

func (snappyCompressor) Compress(dst, src []byte) ([]byte, error) {
	dst = dst[:cap(dst):cap(dst)]
	return snappy.Encode(dst, src), nil
}

func (snappyCompressor) Close() {}

type snappyDecompressor struct{}

var _ Decompressor = snappyDecompressor{}

func (snappyDecompressor) DecompressInto(dst, src []byte) error {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return errors.Wrapf(ErrCorruptInput, "snappy: %v", err)
	}
	if err := checkDecodedLen(Snappy, n, len(dst)); err != nil {
		return err
	}
	result, err := snappy.Decode(dst, src)
	if err != nil {
		return errors.Wrapf(ErrCorruptInput, "snappy: %v", err)
	}
	if len(result) != len(dst) || (len(result) > 0 && &result[0] != &dst[0]) {
		return errors.Wrapf(ErrCorruptInput, "snappy: decompressed into unexpected buffer")
	}
	return nil
}

func (snappyDecompressor) Close() {}
