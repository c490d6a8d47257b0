// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record encodes and decodes the fixed-size records that describe the
// blocks stored on a medium.
//
// The indexed format stores one 512-byte block record per committed block in
// the medium's index file; record i lives at offset i*512 and describes
// logical block i. The layout (little-endian) is:
//
//	[0:2)    format version, currently 1
//	[2]      kind (1 data, 2 filemark, 3 end-of-data)
//	[3]      flags (0x01 compressed, 0x02 encrypted, 0x04 checksum present)
//	[4]      compression algorithm, non-zero iff the compressed flag is set
//	[8:16)   offset of the payload in the data file
//	[16:20)  logical block number
//	[20:24)  logical (uncompressed) size
//	[24:28)  physical (stored) size
//	[28:32)  CRC32C of the uncompressed payload
//	[32:128) encryption descriptor
//
// The remaining bytes are zero. Decoding reads the version first and fails
// closed on versions, kinds and flags it does not know.
//
// The legacy format interleaves payloads with 512-byte headers linked by byte
// offset; see LegacyHeader.
package record // import "github.com/cockroachdb/vtape/record"

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/compression"
)

// BlockRecordSize is the size of an encoded block record.
const BlockRecordSize = 512

// FormatVersion is the block record format version written by this package.
const FormatVersion uint16 = 1

// Kind is the kind of a record.
type Kind uint8

const (
	// KindBOT is the beginning-of-tape header of the legacy format. It never
	// describes a logical block.
	KindBOT Kind = iota
	// KindData describes a block carrying a payload.
	KindData
	// KindFilemark describes a zero-length filemark.
	KindFilemark
	// KindEndOfData describes the writable frontier. It is never persisted in
	// an index file.
	KindEndOfData
)

var kindNames = [...]string{
	KindBOT:       "bot",
	KindData:      "data",
	KindFilemark:  "filemark",
	KindEndOfData: "eod",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// SafeFormat implements redact.SafeFormatter.
func (k Kind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(k.String()))
}

// Flags is the bitset stored in a record describing how its payload is
// encoded.
type Flags uint8

const (
	// FlagCompressed is set when the payload is compressed.
	FlagCompressed Flags = 1 << iota
	// FlagEncrypted is set when the payload is encrypted and the record carries
	// an encryption descriptor.
	FlagEncrypted
	// FlagChecksum is set when the record carries a content checksum.
	FlagChecksum

	knownFlags = FlagCompressed | FlagEncrypted | FlagChecksum
)

// Block describes one logical block, filemark or the end-of-data position.
type Block struct {
	Kind Kind
	// Num is the logical block number.
	Num base.BlockNum
	// DataOffset is the offset of the stored payload in the data file. For an
	// end-of-data record it is the writable frontier.
	DataOffset uint64
	// LogicalSize is the uncompressed payload length.
	LogicalSize uint32
	// PhysicalSize is the number of payload bytes actually stored.
	PhysicalSize uint32
	// Compression is the algorithm the payload was compressed with;
	// compression.None when it is stored verbatim.
	Compression compression.Algorithm
	// HasChecksum is set when Checksum holds the CRC32C of the uncompressed
	// payload.
	HasChecksum bool
	Checksum    uint32
	// Encryption is non-nil when the payload is encrypted.
	Encryption *Encryption
}

// Flags returns the flag bitset describing b's payload encoding.
func (b *Block) Flags() Flags {
	var f Flags
	if b.Compression != compression.None {
		f |= FlagCompressed
	}
	if b.Encryption != nil {
		f |= FlagEncrypted
	}
	if b.HasChecksum {
		f |= FlagChecksum
	}
	return f
}

// End returns the data file offset just past b's stored payload.
func (b *Block) End() uint64 {
	return b.DataOffset + uint64(b.PhysicalSize)
}

func (b Block) String() string {
	return redact.StringWithoutMarkers(b)
}

// SafeFormat implements redact.SafeFormatter.
func (b Block) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s #%s off=%d", b.Kind, b.Num, redact.SafeUint(b.DataOffset))
	if b.Kind != KindData {
		return
	}
	w.Printf(" size=%d/%d", redact.SafeUint(b.LogicalSize), redact.SafeUint(b.PhysicalSize))
	if b.Compression != compression.None {
		w.Printf(" %s", b.Compression)
	}
	if b.HasChecksum {
		w.Printf(" crc=%s", redact.SafeString(fmt.Sprintf("%08x", b.Checksum)))
	}
	if b.Encryption != nil {
		w.Printf(" key=%s", redact.SafeString(fmt.Sprintf("%x", b.Encryption.KeyID[:])))
	}
}

// Encode writes b's indexed-format encoding into buf, which must be at least
// BlockRecordSize bytes long.
func (b *Block) Encode(buf []byte) {
	buf = buf[:BlockRecordSize]
	clear(buf)
	binary.LittleEndian.PutUint16(buf[0:2], FormatVersion)
	buf[2] = byte(b.Kind)
	buf[3] = byte(b.Flags())
	buf[4] = byte(b.Compression)
	binary.LittleEndian.PutUint64(buf[8:16], b.DataOffset)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(b.Num))
	binary.LittleEndian.PutUint32(buf[20:24], b.LogicalSize)
	binary.LittleEndian.PutUint32(buf[24:28], b.PhysicalSize)
	if b.HasChecksum {
		binary.LittleEndian.PutUint32(buf[28:32], b.Checksum)
	}
	if b.Encryption != nil {
		b.Encryption.encode(buf[32 : 32+EncryptionDescriptorSize])
	}
}

// Decode decodes an indexed-format block record. Any version, kind, flag or
// field combination it does not recognize is reported as corruption.
func Decode(buf []byte) (Block, error) {
	if len(buf) < BlockRecordSize {
		return Block{}, base.CorruptionErrorf("vtape: block record truncated to %d bytes", len(buf))
	}
	if v := binary.LittleEndian.Uint16(buf[0:2]); v != FormatVersion {
		return Block{}, base.CorruptionErrorf("vtape: unknown block record version %d", v)
	}
	b := Block{
		Kind:         Kind(buf[2]),
		DataOffset:   binary.LittleEndian.Uint64(buf[8:16]),
		Num:          base.BlockNum(binary.LittleEndian.Uint32(buf[16:20])),
		LogicalSize:  binary.LittleEndian.Uint32(buf[20:24]),
		PhysicalSize: binary.LittleEndian.Uint32(buf[24:28]),
	}
	switch b.Kind {
	case KindData, KindFilemark, KindEndOfData:
	default:
		return Block{}, base.CorruptionErrorf("vtape: block record %s has invalid kind %s", b.Num, b.Kind)
	}
	if err := decodePayloadEncoding(&b, Flags(buf[3]), buf[4], buf[28:32], buf[32:32+EncryptionDescriptorSize]); err != nil {
		return Block{}, err
	}
	return b, nil
}

// decodePayloadEncoding validates the flags of a decoded record and fills in
// the fields they govern.
func decodePayloadEncoding(b *Block, flags Flags, alg byte, crcBuf, encBuf []byte) error {
	if unknown := flags &^ knownFlags; unknown != 0 {
		return base.CorruptionErrorf("vtape: block record %s has unknown flags %#x", b.Num, uint8(unknown))
	}
	a := compression.Algorithm(alg)
	switch {
	case flags&FlagCompressed == 0 && a != compression.None:
		return base.CorruptionErrorf("vtape: block record %s names algorithm %d without the compressed flag", b.Num, alg)
	case flags&FlagCompressed != 0 && (a == compression.None || !a.Valid()):
		return base.CorruptionErrorf("vtape: block record %s has invalid compression algorithm %d", b.Num, alg)
	}
	b.Compression = a

	switch b.Kind {
	case KindData:
	case KindBOT:
		if flags != 0 {
			return base.CorruptionErrorf("vtape: %s record carries payload flags %#x", b.Kind, uint8(flags))
		}
	default:
		if flags != 0 {
			return base.CorruptionErrorf("vtape: %s record %s carries payload flags %#x", b.Kind, b.Num, uint8(flags))
		}
		if b.LogicalSize != 0 || b.PhysicalSize != 0 {
			return base.CorruptionErrorf("vtape: %s record %s has non-zero size", b.Kind, b.Num)
		}
	}

	if flags&FlagChecksum != 0 {
		b.HasChecksum = true
		b.Checksum = binary.LittleEndian.Uint32(crcBuf)
	}
	if flags&FlagEncrypted != 0 {
		e, err := decodeEncryption(encBuf)
		if err != nil {
			return base.MarkCorruptionError(errors.Wrapf(err, "vtape: block record %s", b.Num))
		}
		b.Encryption = e
	}
	return nil
}
