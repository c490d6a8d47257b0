// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package blockcodec turns the payload of a logical block into the bytes
// stored on a medium and back.
//
// Writing compresses the payload (keeping it verbatim when compression does
// not help), checksums the uncompressed bytes with CRC32C, and seals the
// result with AES-256-GCM when a key is set. Reading runs the steps in
// reverse, always decoding the full block before the caller trims it to the
// requested length, so that the content checksum covers every byte.
package blockcodec

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/compression"
	"github.com/cockroachdb/vtape/internal/crc"
	"github.com/cockroachdb/vtape/record"
)

// Encoder encodes block payloads for storage. An Encoder is not safe for
// concurrent use.
type Encoder struct {
	setting    compression.Setting
	compressor compression.Compressor
	checksum   bool
	key        *Key

	compressBuf []byte
	sealBuf     []byte
}

// NewEncoder returns an encoder that compresses with the given setting and,
// if checksum is set, records content checksums.
func NewEncoder(setting compression.Setting, checksum bool) *Encoder {
	return &Encoder{
		setting:    setting,
		compressor: compression.GetCompressor(setting),
		checksum:   checksum,
	}
}

// Setting returns the encoder's compression setting.
func (e *Encoder) Setting() compression.Setting { return e.setting }

// SetKey sets the key subsequent blocks are encrypted with. A nil key
// disables encryption.
func (e *Encoder) SetKey(k *Key) { e.key = k }

// Close releases the encoder's compressor.
func (e *Encoder) Close() {
	if e.compressor != nil {
		e.compressor.Close()
		e.compressor = nil
	}
}

// Encoded is an encoded block ready to be appended.
type Encoded struct {
	// Block describes the stored payload. Its number and data offset are
	// assigned by the block store.
	Block record.Block
	// Stored is the payload as it is to be stored. It aliases the encoder's
	// buffers or the input and is valid until the next call to Encode.
	Stored []byte
	// ContentCRC is the CRC32C of the uncompressed payload, valid when
	// Block.HasChecksum is set.
	ContentCRC uint32
}

// Encode encodes payload. A compressor failure is returned marked
// ErrCompression and nothing should be stored.
func (e *Encoder) Encode(payload []byte) (Encoded, error) {
	enc := Encoded{
		Block: record.Block{
			Kind:        record.KindData,
			LogicalSize: uint32(len(payload)),
		},
		Stored: payload,
	}
	if e.checksum {
		enc.ContentCRC = crc.New(payload).Value()
		enc.Block.HasChecksum = true
		enc.Block.Checksum = enc.ContentCRC
	}

	if e.setting.Algorithm != compression.None && len(payload) > 0 {
		out, err := e.compressor.Compress(e.compressBuf, payload)
		switch {
		case errors.Is(err, compression.ErrIncompressible):
		case err != nil:
			return Encoded{}, errors.Mark(
				errors.Wrapf(err, "vtape: compressing %d byte block with %s", len(payload), e.setting),
				base.ErrCompression)
		case len(out) < len(payload):
			enc.Stored = out
			enc.Block.Compression = e.setting.Algorithm
		}
		if cap(out) > cap(e.compressBuf) {
			e.compressBuf = out[:0]
		}
	}

	if e.key != nil {
		sealed, desc, err := e.key.seal(e.sealBuf, enc.Stored)
		if err != nil {
			return Encoded{}, err
		}
		e.sealBuf = sealed[:0]
		enc.Stored = sealed
		enc.Block.Encryption = desc
	}
	enc.Block.PhysicalSize = uint32(len(enc.Stored))
	return enc, nil
}

// Decoder decodes stored payloads. A Decoder is not safe for concurrent use.
type Decoder struct {
	key     *Key
	openBuf []byte
}

// SetKey sets the key encrypted blocks are decrypted with.
func (d *Decoder) SetKey(k *Key) { d.key = k }

// Decode decodes the stored payload of b. When len(dst) is at least the
// block's logical size the payload is decoded into dst; otherwise it is
// decoded into a scratch buffer and its prefix copied into dst. The full
// payload is returned in both cases.
//
// A block encrypted with another key fails with ErrEncryptionKey, a decoder
// failure with ErrDecompression, and a payload that decodes to the wrong
// content with ErrChecksumMismatch.
func (d *Decoder) Decode(b *record.Block, stored []byte, dst []byte) ([]byte, error) {
	if b.Encryption != nil {
		if d.key == nil {
			return nil, errors.Mark(errors.Newf("vtape: block %s is encrypted and no key is set", b.Num),
				base.ErrEncryptionKey)
		}
		out, err := d.key.open(d.openBuf, stored, b.Encryption)
		if err != nil {
			return nil, errors.Wrapf(err, "vtape: block %s", b.Num)
		}
		d.openBuf = out[:0]
		stored = out
	}

	full, err := compression.Decompress(b.Compression, dst, stored, int(b.LogicalSize))
	if err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "vtape: decompressing block %s (%s, %d bytes)", b.Num, b.Compression, len(stored)),
			base.ErrDecompression)
	}

	if b.HasChecksum {
		if got := crc.New(full).Value(); got != b.Checksum {
			err := errors.Newf("vtape: block %s checksum mismatch: computed %08x, recorded %08x", b.Num, got, b.Checksum)
			if found, idx, bit := crc.FindBitFlip(full, b.Checksum); found {
				err = errors.WithDetailf(err, "single bit flip at byte %d bit %d", idx, bit)
			}
			return nil, errors.Mark(err, base.ErrChecksumMismatch)
		}
	}
	return full, nil
}
