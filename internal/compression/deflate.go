// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

type deflateCompressor struct {
	level int
	buf   bytes.Buffer
	w     *zlib.Writer
}

var _ Compressor = (*deflateCompressor)(nil)

func newDeflateCompressor(level int) *deflateCompressor {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	return &deflateCompressor{level: level}
}

func (c *deflateCompressor) Algorithm() Algorithm { return Deflate }

func (c *deflateCompressor) Compress(dst, src []byte) ([]byte, error) {
	c.buf.Reset()
	if c.w == nil {
		w, err := zlib.NewWriterLevel(&c.buf, c.level)
		if err != nil {
			return nil, errors.Wrap(err, "deflate")
		}
		c.w = w
	} else {
		c.w.Reset(&c.buf)
	}
	if _, err := c.w.Write(src); err != nil {
		return nil, errors.Wrap(err, "deflate")
	}
	if err := c.w.Close(); err != nil {
		return nil, errors.Wrap(err, "deflate")
	}
	return append(dst[:0], c.buf.Bytes()...), nil
}

func (c *deflateCompressor) Close() {
	c.w = nil
}

type deflateDecompressor struct{}

var _ Decompressor = deflateDecompressor{}

func (deflateDecompressor) DecompressInto(dst, src []byte) error {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return classifyDeflate(err)
	}
	defer r.Close()

	n := 0
	for n < len(dst) {
		m, err := r.Read(dst[n:])
		n += m
		if err == io.EOF {
			return checkDecodedLen(Deflate, n, len(dst))
		}
		if err != nil {
			return classifyDeflate(err)
		}
	}
	// The block is full; the stream must end here.
	var extra [1]byte
	for {
		m, err := r.Read(extra[:])
		if m > 0 {
			return errors.Wrapf(ErrOverrun, "deflate: stream continues past %d bytes", len(dst))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return classifyDeflate(err)
		}
	}
}

func (deflateDecompressor) Close() {}

func classifyDeflate(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrapf(ErrMissingTerminator, "deflate: %v", err)
	}
	// Header, checksum and flate.CorruptInputError failures.
	return errors.Wrapf(ErrCorruptInput, "deflate: %v", err)
}
