// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

type zstdCompressor struct {
	level int
	enc   *zstd.Encoder
}

var _ Compressor = (*zstdCompressor)(nil)

func newZstdCompressor(level int) *zstdCompressor {
	if level <= 0 {
		level = ZstdDefault.Level
	}
	return &zstdCompressor{level: level}
}

func (z *zstdCompressor) Algorithm() Algorithm { return Zstd }

func (z *zstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	if z.enc == nil {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(z.level)),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, errors.Wrap(err, "zstd")
		}
		z.enc = enc
	}
	return z.enc.EncodeAll(src, dst[:0]), nil
}

func (z *zstdCompressor) Close() {
	if z.enc != nil {
		_ = z.enc.Close()
		z.enc = nil
	}
}

type zstdDecompressor struct{}

var _ Decompressor = zstdDecompressor{}

func (zstdDecompressor) DecompressInto(dst, src []byte) error {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return errors.Wrapf(ErrCorruptInput, "zstd: %v", err)
	}
	defer decoder.Close()
	result, err := decoder.DecodeAll(src, dst[:0])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return errors.Wrapf(ErrMissingTerminator, "zstd: %v", err)
		}
		return errors.Wrapf(ErrCorruptInput, "zstd: %v", err)
	}
	if err := checkDecodedLen(Zstd, len(result), len(dst)); err != nil {
		return err
	}
	if len(result) > 0 && &result[0] != &dst[0] {
		return errors.Wrapf(ErrCorruptInput, "zstd: decompressed into unexpected buffer")
	}
	return nil
}

func (zstdDecompressor) Close() {}
