// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/compression"
	"github.com/stretchr/testify/require"
)

func encryptedBlock() Block {
	return Block{
		Kind:         KindData,
		Num:          7,
		DataOffset:   1 << 33,
		LogicalSize:  65536,
		PhysicalSize: 1234,
		Compression:  compression.Zstd,
		HasChecksum:  true,
		Checksum:     0xdeadbeef,
		Encryption: &Encryption{
			KeyLength: 32,
			KeyID:     [KeyIDSize]byte{1, 2, 3, 4, 5, 6, 7, 8},
			Nonce:     [NonceSize]byte{9, 9, 9},
			UKAD:      []byte("user"),
			AKAD:      []byte("auth"),
		},
	}
}

func TestBlockEncodeDecode(t *testing.T) {
	for _, b := range []Block{
		{Kind: KindData, Num: 0, LogicalSize: 10, PhysicalSize: 10},
		{Kind: KindFilemark, Num: 3, DataOffset: 10},
		{Kind: KindEndOfData, Num: 4, DataOffset: 10},
		{Kind: KindData, Num: 5, DataOffset: 10, LogicalSize: 10, PhysicalSize: 10, HasChecksum: true, Checksum: 1},
		encryptedBlock(),
	} {
		var buf [BlockRecordSize]byte
		b.Encode(buf[:])
		got, err := Decode(buf[:])
		require.NoError(t, err)
		require.Equal(t, b, got)
	}
}

func TestBlockFlags(t *testing.T) {
	b := encryptedBlock()
	require.Equal(t, FlagCompressed|FlagEncrypted|FlagChecksum, b.Flags())
	require.Equal(t, uint64(1<<33+1234), b.End())
	require.Equal(t, "data #7 off=8589934592 size=65536/1234 zstd crc=deadbeef key=0102030405060708", b.String())
}

func TestDecodeFailsClosed(t *testing.T) {
	valid := func() []byte {
		b := encryptedBlock()
		buf := make([]byte, BlockRecordSize)
		b.Encode(buf)
		return buf
	}
	testCases := []struct {
		name   string
		mutate func(buf []byte) []byte
	}{
		{"short", func(buf []byte) []byte { return buf[:100] }},
		{"version", func(buf []byte) []byte { binary.LittleEndian.PutUint16(buf, 2); return buf }},
		{"kind-zero", func(buf []byte) []byte { buf[2] = byte(KindBOT); return buf }},
		{"kind-unknown", func(buf []byte) []byte { buf[2] = 9; return buf }},
		{"unknown-flag", func(buf []byte) []byte { buf[3] |= 0x80; return buf }},
		{"algorithm-without-flag", func(buf []byte) []byte { buf[3] &^= byte(FlagCompressed); return buf }},
		{"flag-without-algorithm", func(buf []byte) []byte { buf[4] = 0; return buf }},
		{"unknown-algorithm", func(buf []byte) []byte { buf[4] = 200; return buf }},
		{"kad-too-long", func(buf []byte) []byte { binary.LittleEndian.PutUint32(buf[44:48], 33); return buf }},
		{"no-key", func(buf []byte) []byte { binary.LittleEndian.PutUint32(buf[32:36], 0); return buf }},
		{"filemark-flags", func(buf []byte) []byte { buf[2] = byte(KindFilemark); return buf }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.mutate(valid()))
			require.Error(t, err)
			require.True(t, errors.Is(err, base.ErrCorruption), "%v", err)
		})
	}

	// A filemark with a size is corrupt too.
	fm := Block{Kind: KindFilemark, Num: 1}
	buf := make([]byte, BlockRecordSize)
	fm.Encode(buf)
	binary.LittleEndian.PutUint32(buf[20:24], 5)
	_, err := Decode(buf)
	require.True(t, errors.Is(err, base.ErrCorruption))
}

func TestLegacyHeader(t *testing.T) {
	bot := LegacyHeader{
		Block:    Block{Kind: KindBOT, LogicalSize: 1024, PhysicalSize: 1024, DataOffset: LegacyHeaderSize},
		This:     0,
		Next:     LegacyHeaderSize + 1024,
		Capacity: 8 << 20,
	}
	data := LegacyHeader{
		Block: Block{
			Kind: KindData, Num: 0, LogicalSize: 100, PhysicalSize: 40,
			Compression: compression.Deflate, HasChecksum: true, Checksum: 42,
		},
		Prev: 0,
		This: bot.Next,
		Next: bot.Next + LegacyHeaderSize + 40,
	}
	data.DataOffset = data.This + LegacyHeaderSize
	eod := LegacyHeader{
		Block: Block{Kind: KindEndOfData, Num: 1},
		Prev:  data.This,
		This:  data.Next,
		Next:  data.Next,
	}
	eod.DataOffset = eod.This + LegacyHeaderSize

	for _, h := range []LegacyHeader{bot, data, eod} {
		buf := make([]byte, LegacyHeaderSize)
		h.Encode(buf)
		got, err := DecodeLegacy(buf, h.This)
		require.NoError(t, err)
		require.Equal(t, h, got)
	}

	buf := make([]byte, LegacyHeaderSize)
	data.Encode(buf)
	// Wrong offset.
	_, err := DecodeLegacy(buf, data.This+1)
	require.True(t, errors.Is(err, base.ErrCorruption))
	// Broken link.
	binary.LittleEndian.PutUint64(buf[24:32], data.Next+1)
	_, err = DecodeLegacy(buf, data.This)
	require.True(t, errors.Is(err, base.ErrCorruption))
	// Wrong version.
	eod.Encode(buf)
	binary.LittleEndian.PutUint16(buf[0:2], FormatVersion)
	_, err = DecodeLegacy(buf, eod.This)
	require.True(t, errors.Is(err, base.ErrCorruption))
	// End-of-data must link to itself.
	eod.Next++
	eod.Encode(buf)
	_, err = DecodeLegacy(buf, eod.This)
	require.True(t, errors.Is(err, base.ErrCorruption))
}
