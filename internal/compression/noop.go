// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

type noopCompressor struct{}

var _ Compressor = noopCompressor{}

func (noopCompressor) Algorithm() Algorithm { return None }

func (noopCompressor) Compress(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

func (noopCompressor) Close() {}

type noopDecompressor struct{}

var _ Decompressor = noopDecompressor{}

func (noopDecompressor) DecompressInto(dst, src []byte) error {
	if err := checkDecodedLen(None, len(src), len(dst)); err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

func (noopDecompressor) Close() {}
