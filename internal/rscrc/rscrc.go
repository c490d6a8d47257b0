// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package rscrc implements the Reed-Solomon CRC used by the "RS-CRC" logical
// block protection method of LTO drives (ECMA-319 annex C).
//
// The checksum consists of the four parity symbols of a Reed-Solomon code over
// GF(2^8), generated by the field polynomial x^8+x^4+x^3+x^2+1 and the code
// generator polynomial
//
//	G(x) = x^4 + α^201·x^3 + α^246·x^2 + α^201·x + 1
//
// The encoder is a table driven LFSR: each input byte is combined with the
// high-order parity symbol and the table supplies the four products with the
// generator coefficients. Appending the checksum (big-endian) to the data
// yields a codeword whose checksum is zero.
package rscrc

const fieldPoly = 0x11d

var (
	expTable [512]byte
	logTable [256]byte
	table    [256]uint32
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		expTable[i] = byte(x)
		logTable[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= fieldPoly
		}
	}
	for i := 255; i < len(expTable); i++ {
		expTable[i] = expTable[i-255]
	}

	g3, g2, g1 := expTable[201], expTable[246], expTable[201]
	for v := 0; v < 256; v++ {
		b := byte(v)
		table[v] = uint32(mul(b, g3))<<24 |
			uint32(mul(b, g2))<<16 |
			uint32(mul(b, g1))<<8 |
			uint32(b)
	}
}

func mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[int(logTable[a])+int(logTable[b])]
}

// Update returns the result of running the bytes through the encoder starting
// from crc.
func Update(crc uint32, b []byte) uint32 {
	for _, c := range b {
		crc = (crc << 8) ^ table[c^byte(crc>>24)]
	}
	return crc
}

// Checksum returns the Reed-Solomon CRC of b.
func Checksum(b []byte) uint32 {
	return Update(0, b)
}
