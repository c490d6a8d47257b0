// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mam

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/vtape/internal/base"
)

// The metadata file holds the MAM, then a filemark header, then one u32 block
// number per filemark:
//
//	[0:1024)     MAM
//	[1024:1536)  filemark header: [0:4) count, [4:8) version, [8:16) xxhash64
//	             of the entry bytes
//	[1536:...)   count little-endian u32 entries
const (
	// FilemarkHeaderSize is the size of the filemark header.
	FilemarkHeaderSize = 512
	// FilemarkHeaderVersion is the filemark header version written by this
	// package.
	FilemarkHeaderVersion uint32 = 1
	// FilemarksOffset is the offset of the filemark header in the metadata
	// file.
	FilemarksOffset = Size
)

const filemarkEntrySize = 4

// EncodedMetaSize returns the size of a metadata file holding n filemarks.
func EncodedMetaSize(n int) int {
	return Size + FilemarkHeaderSize + n*filemarkEntrySize
}

// EncodeFilemarks returns the filemark header followed by the entries of x.
func EncodeFilemarks(x *FilemarkIndex) []byte {
	buf := make([]byte, FilemarkHeaderSize+len(x.marks)*filemarkEntrySize)
	entries := buf[FilemarkHeaderSize:]
	for i, n := range x.marks {
		binary.LittleEndian.PutUint32(entries[i*filemarkEntrySize:], uint32(n))
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(x.marks)))
	binary.LittleEndian.PutUint32(buf[4:8], FilemarkHeaderVersion)
	binary.LittleEndian.PutUint64(buf[8:16], xxhash.Sum64(entries))
	return buf
}

// EncodeMeta returns the complete contents of a metadata file.
func EncodeMeta(m *MAM, x *FilemarkIndex) ([]byte, error) {
	buf := make([]byte, Size, EncodedMetaSize(x.Len()))
	if err := m.Encode(buf); err != nil {
		return nil, err
	}
	return append(buf, EncodeFilemarks(x)...), nil
}

// DecodeMeta decodes the contents of a metadata file. The file must end right
// after the last filemark entry.
func DecodeMeta(buf []byte) (MAM, FilemarkIndex, error) {
	m, err := Decode(buf)
	if err != nil {
		return MAM{}, FilemarkIndex{}, err
	}
	x, err := DecodeFilemarks(buf[Size:])
	if err != nil {
		return MAM{}, FilemarkIndex{}, err
	}
	return m, x, nil
}

// DecodeFilemarks decodes a filemark header and its entries.
func DecodeFilemarks(buf []byte) (FilemarkIndex, error) {
	if len(buf) < FilemarkHeaderSize {
		return FilemarkIndex{}, base.CorruptionErrorf("vtape: filemark header truncated to %d bytes", len(buf))
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != FilemarkHeaderVersion {
		return FilemarkIndex{}, base.CorruptionErrorf("vtape: unknown filemark header version %d", v)
	}
	count := int(binary.LittleEndian.Uint32(buf[0:4]))
	entries := buf[FilemarkHeaderSize:]
	if len(entries) != count*filemarkEntrySize {
		return FilemarkIndex{}, base.CorruptionErrorf("vtape: filemark header claims %d entries, file holds %d bytes",
			count, len(entries))
	}
	if got, want := xxhash.Sum64(entries), binary.LittleEndian.Uint64(buf[8:16]); got != want {
		return FilemarkIndex{}, base.CorruptionErrorf("vtape: filemark entries hash %016x, header records %016x", got, want)
	}
	marks := make([]base.BlockNum, count)
	for i := range marks {
		marks[i] = base.BlockNum(binary.LittleEndian.Uint32(entries[i*filemarkEntrySize:]))
	}
	return MakeFilemarkIndex(marks...)
}
