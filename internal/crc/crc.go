// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package crc implements the CRC32C (Castagnoli) checksum used for block
// content integrity and for the CRC32C logical block protection method.
//
// Unlike a log-structured store, the value is not masked: logical block
// protection hands it to initiators that compute a plain CRC32C themselves.
package crc

import "hash/crc32"

var table = crc32.MakeTable(crc32.Castagnoli)

// CRC is a CRC-32 checksum computed using Castagnoli's polynomial.
type CRC uint32

// New returns the result of adding the bytes to the zero-value CRC.
func New(b []byte) CRC {
	return CRC(0).Update(b)
}

// Update returns the result of adding the bytes to the CRC.
func (c CRC) Update(b []byte) CRC {
	return CRC(crc32.Update(uint32(c), table, b))
}

// Value returns the checksum value.
func (c CRC) Value() uint32 {
	return uint32(c)
}

// FindBitFlip reports whether flipping a single bit of data makes it match
// expected, returning the byte index and bit of the flip. Only the first 40
// KiB are examined. data is restored before returning.
func FindBitFlip(data []byte, expected uint32) (found bool, index int, bit int) {
	const limit = 40 << 10
	for i := 0; i < min(len(data), limit); i++ {
		for b := 0; b < 8; b++ {
			data[i] ^= 1 << b
			v := New(data).Value()
			data[i] ^= 1 << b
			if v == expected {
				return true, i, b
			}
		}
	}
	return false, 0, 0
}
