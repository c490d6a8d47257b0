// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"encoding/binary"

	"github.com/cockroachdb/vtape/internal/base"
)

// LegacyHeaderSize is the size of an encoded legacy header.
const LegacyHeaderSize = 512

// LegacyVersion tags every legacy header ("L1").
const LegacyVersion uint16 = 0x4c31

// LegacyHeader is a header of the legacy single-file format. Each header is
// immediately followed by its physical payload, and headers are doubly linked
// by byte offset:
//
//	[0:2)    version 0x4c31
//	[2]      kind (0 BOT, 1 data, 2 filemark, 3 end-of-data)
//	[3]      flags
//	[4]      compression algorithm
//	[8:16)   offset of the previous header
//	[16:24)  offset of this header
//	[24:32)  offset of the next header
//	[32:36)  logical block number
//	[36:40)  logical size
//	[40:44)  physical size
//	[44:48)  CRC32C of the uncompressed payload
//	[48:56)  medium capacity (BOT only)
//	[56:152) encryption descriptor
//
// The file begins with a BOT header whose payload is the medium's MAM and ends
// with an end-of-data header whose next offset is its own.
type LegacyHeader struct {
	// Block describes the record. Its DataOffset is always This plus
	// LegacyHeaderSize.
	Block
	Prev, This, Next uint64
	// Capacity is the medium capacity fixed at creation. Only the BOT header
	// carries it.
	Capacity uint64
}

// Encode writes h into buf, which must be at least LegacyHeaderSize bytes
// long.
func (h *LegacyHeader) Encode(buf []byte) {
	buf = buf[:LegacyHeaderSize]
	clear(buf)
	binary.LittleEndian.PutUint16(buf[0:2], LegacyVersion)
	buf[2] = byte(h.Kind)
	buf[3] = byte(h.Flags())
	buf[4] = byte(h.Compression)
	binary.LittleEndian.PutUint64(buf[8:16], h.Prev)
	binary.LittleEndian.PutUint64(buf[16:24], h.This)
	binary.LittleEndian.PutUint64(buf[24:32], h.Next)
	binary.LittleEndian.PutUint32(buf[32:36], uint32(h.Num))
	binary.LittleEndian.PutUint32(buf[36:40], h.LogicalSize)
	binary.LittleEndian.PutUint32(buf[40:44], h.PhysicalSize)
	if h.HasChecksum {
		binary.LittleEndian.PutUint32(buf[44:48], h.Checksum)
	}
	if h.Kind == KindBOT {
		binary.LittleEndian.PutUint64(buf[48:56], h.Capacity)
	}
	if h.Encryption != nil {
		h.Encryption.encode(buf[56 : 56+EncryptionDescriptorSize])
	}
}

// DecodeLegacy decodes a legacy header. The header's This offset must match
// the offset it was read from; anything else is corruption.
func DecodeLegacy(buf []byte, off uint64) (LegacyHeader, error) {
	if len(buf) < LegacyHeaderSize {
		return LegacyHeader{}, base.CorruptionErrorf("vtape: legacy header at %d truncated to %d bytes", off, len(buf))
	}
	if v := binary.LittleEndian.Uint16(buf[0:2]); v != LegacyVersion {
		return LegacyHeader{}, base.CorruptionErrorf("vtape: unknown legacy header version %#x at %d", v, off)
	}
	h := LegacyHeader{
		Block: Block{
			Kind:         Kind(buf[2]),
			Num:          base.BlockNum(binary.LittleEndian.Uint32(buf[32:36])),
			LogicalSize:  binary.LittleEndian.Uint32(buf[36:40]),
			PhysicalSize: binary.LittleEndian.Uint32(buf[40:44]),
			DataOffset:   off + LegacyHeaderSize,
		},
		Prev: binary.LittleEndian.Uint64(buf[8:16]),
		This: binary.LittleEndian.Uint64(buf[16:24]),
		Next: binary.LittleEndian.Uint64(buf[24:32]),
	}
	if h.This != off {
		return LegacyHeader{}, base.CorruptionErrorf("vtape: legacy header at %d claims offset %d", off, h.This)
	}
	switch h.Kind {
	case KindBOT:
		h.Capacity = binary.LittleEndian.Uint64(buf[48:56])
	case KindData, KindFilemark, KindEndOfData:
	default:
		return LegacyHeader{}, base.CorruptionErrorf("vtape: legacy header at %d has invalid kind %s", off, h.Kind)
	}
	if err := decodePayloadEncoding(&h.Block, Flags(buf[3]), buf[4], buf[44:48], buf[56:56+EncryptionDescriptorSize]); err != nil {
		return LegacyHeader{}, err
	}
	switch {
	case h.Kind == KindEndOfData && h.Next != h.This:
		return LegacyHeader{}, base.CorruptionErrorf("vtape: legacy end-of-data at %d links to %d", off, h.Next)
	case h.Kind != KindEndOfData && h.Next != h.This+LegacyHeaderSize+uint64(h.PhysicalSize):
		return LegacyHeader{}, base.CorruptionErrorf("vtape: legacy %s header at %d links to %d, want %d",
			h.Kind, off, h.Next, h.This+LegacyHeaderSize+uint64(h.PhysicalSize))
	}
	return h, nil
}
