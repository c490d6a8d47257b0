// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compression implements the block compressors a medium can record.
package compression

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Algorithm identifies a compression algorithm. The numeric values are part of
// the durable format and should not be changed.
type Algorithm uint8

const (
	None Algorithm = iota
	// FastLZ is the LZO-family fast compressor (LZ4 block format).
	FastLZ
	// Deflate is the DEFLATE-family compressor (zlib framing).
	Deflate
	Snappy
	MinLZ
	Zstd

	NumAlgorithms
)

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case FastLZ:
		return "fastlz"
	case Deflate:
		return "deflate"
	case Snappy:
		return "snappy"
	case MinLZ:
		return "minlz"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// SafeFormat implements redact.SafeFormatter.
func (a Algorithm) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(a.String()))
}

// Valid returns true if a is a known algorithm.
func (a Algorithm) Valid() bool { return a < NumAlgorithms }

// ParseAlgorithm parses the output of Algorithm.String.
func ParseAlgorithm(s string) (Algorithm, error) {
	for a := None; a < NumAlgorithms; a++ {
		if a.String() == s {
			return a, nil
		}
	}
	return None, errors.Errorf("unknown compression algorithm %q", s)
}

// Setting is an algorithm and the level it is run at. Level is ignored by
// algorithms without levels.
type Setting struct {
	Algorithm Algorithm
	Level     int
}

// Commonly used settings.
var (
	NoCompression     = Setting{Algorithm: None}
	FastLZCompression = Setting{Algorithm: FastLZ}
	DeflateDefault    = Setting{Algorithm: Deflate, Level: 6}
	SnappyCompression = Setting{Algorithm: Snappy}
	MinLZFastest      = Setting{Algorithm: MinLZ, Level: 1}
	ZstdDefault       = Setting{Algorithm: Zstd, Level: 3}
)

// String implements fmt.Stringer.
func (s Setting) String() string {
	switch s.Algorithm {
	case None, FastLZ, Snappy:
		return s.Algorithm.String()
	default:
		return fmt.Sprintf("%s%d", s.Algorithm, s.Level)
	}
}

// ParseSetting parses the output of Setting.String.
func ParseSetting(s string) (Setting, error) {
	for a := None; a < NumAlgorithms; a++ {
		name := a.String()
		if len(s) < len(name) || s[:len(name)] != name {
			continue
		}
		rest := s[len(name):]
		if rest == "" {
			return defaultSetting(a), nil
		}
		var level int
		if _, err := fmt.Sscanf(rest, "%d", &level); err != nil {
			return Setting{}, errors.Errorf("invalid compression level in %q", s)
		}
		return Setting{Algorithm: a, Level: level}, nil
	}
	return Setting{}, errors.Errorf("unknown compression setting %q", s)
}

func defaultSetting(a Algorithm) Setting {
	switch a {
	case Deflate:
		return DeflateDefault
	case MinLZ:
		return MinLZFastest
	case Zstd:
		return ZstdDefault
	default:
		return Setting{Algorithm: a}
	}
}

// Compressor compresses blocks with a single algorithm. A Compressor is not
// safe for concurrent use.
type Compressor interface {
	Algorithm() Algorithm
	// Compress compresses src, appending to dst[:0] when it has room, and
	// returns the compressed bytes. The result may be larger than src; the
	// caller decides whether storing it is worthwhile. ErrIncompressible is
	// returned by algorithms that decline to encode src at all.
	Compress(dst, src []byte) ([]byte, error)
	// Close must be called when the Compressor is no longer needed.
	Close()
}

// GetCompressor returns a Compressor for the given setting.
func GetCompressor(s Setting) Compressor {
	switch s.Algorithm {
	case None:
		return noopCompressor{}
	case FastLZ:
		return fastlzCompressor{}
	case Deflate:
		return newDeflateCompressor(s.Level)
	case Snappy:
		return snappyCompressor{}
	case MinLZ:
		return getMinlzCompressor(s.Level)
	case Zstd:
		return newZstdCompressor(s.Level)
	default:
		panic(errors.AssertionFailedf("invalid compression algorithm %d", s.Algorithm))
	}
}

// Decompressor decodes blocks produced by one algorithm.
type Decompressor interface {
	// DecompressInto decompresses src into dst; src must decode to exactly
	// len(dst) bytes. Failures wrap one of the Err* causes of this package.
	DecompressInto(dst, src []byte) error
	Close()
}

// GetDecompressor returns a Decompressor for the given algorithm.
func GetDecompressor(a Algorithm) Decompressor {
	switch a {
	case None:
		return noopDecompressor{}
	case FastLZ:
		return fastlzDecompressor{}
	case Deflate:
		return deflateDecompressor{}
	case Snappy:
		return snappyDecompressor{}
	case MinLZ:
		return minlzDecompressor{}
	case Zstd:
		return zstdDecompressor{}
	default:
		panic(errors.AssertionFailedf("invalid compression algorithm %d", a))
	}
}

// ErrIncompressible is returned by Compress when the algorithm declines to
// encode its input. The caller should store the block uncompressed.
var ErrIncompressible = errors.New("data is incompressible")

// The causes of a decompression failure.
var (
	// ErrTruncated means the stream ended cleanly but decoded to fewer bytes
	// than the block's logical size.
	ErrTruncated = errors.New("compressed input truncated")
	// ErrOverrun means the stream decodes to more bytes than the block's
	// logical size.
	ErrOverrun = errors.New("decompressed output overruns block")
	// ErrCorruptInput means the stream is malformed (bad header, bad
	// back-reference, bad checksum).
	ErrCorruptInput = errors.New("corrupt compressed stream")
	// ErrMissingTerminator means the stream stopped before its end marker.
	ErrMissingTerminator = errors.New("compressed stream missing terminator")
)

// Cause returns the decompression cause wrapped by err, or nil.
func Cause(err error) error {
	for _, c := range []error{ErrTruncated, ErrOverrun, ErrCorruptInput, ErrMissingTerminator} {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}

// Decompress decompresses src, which must decode to exactly logicalSize bytes.
// When len(buf) >= logicalSize the payload is decoded directly into buf.
// Otherwise it is decoded into a full-size scratch buffer and the first
// len(buf) bytes are copied into buf; the excess is discarded. The full
// decoded payload is returned in both cases.
func Decompress(a Algorithm, buf, src []byte, logicalSize int) ([]byte, error) {
	if !a.Valid() {
		return nil, errors.Wrapf(ErrCorruptInput, "unknown algorithm %d", errors.Safe(uint8(a)))
	}
	d := GetDecompressor(a)
	defer d.Close()
	if len(buf) >= logicalSize {
		full := buf[:logicalSize]
		if err := d.DecompressInto(full, src); err != nil {
			return nil, err
		}
		return full, nil
	}
	full := make([]byte, logicalSize)
	if err := d.DecompressInto(full, src); err != nil {
		return nil, err
	}
	copy(buf, full)
	return full, nil
}

// checkDecodedLen classifies a mismatch between a stream's advertised decoded
// length and the expected one.
func checkDecodedLen(a Algorithm, got, want int) error {
	switch {
	case got > want:
		return errors.Wrapf(ErrOverrun, "%s: decodes to %d bytes, block holds %d", a, got, want)
	case got < want:
		return errors.Wrapf(ErrTruncated, "%s: decodes to %d bytes, block holds %d", a, got, want)
	}
	return nil
}
