// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/crc"
	"github.com/cockroachdb/vtape/internal/rscrc"
)

// LBPMethod is a logical block protection method: a checksum over a block's
// uncompressed payload, carried as a 4-byte big-endian trailer between the
// initiator and the drive.
type LBPMethod uint8

const (
	// LBPNone disables logical block protection.
	LBPNone LBPMethod = iota
	// LBPRSCRC protects blocks with the Reed-Solomon CRC.
	LBPRSCRC
	// LBPCRC32C protects blocks with CRC32C.
	LBPCRC32C
)

// LBPSize is the size of a logical block protection trailer.
const LBPSize = 4

func (m LBPMethod) String() string {
	switch m {
	case LBPNone:
		return "none"
	case LBPRSCRC:
		return "rs-crc"
	case LBPCRC32C:
		return "crc32c"
	default:
		return fmt.Sprintf("lbp(%d)", uint8(m))
	}
}

// SafeFormat implements redact.SafeFormatter.
func (m LBPMethod) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(m.String()))
}

// ParseLBPMethod parses the output of LBPMethod.String.
func ParseLBPMethod(s string) (LBPMethod, error) {
	for m := LBPNone; m <= LBPCRC32C; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, errors.Errorf("vtape: unknown logical block protection method %q", s)
}

// TrailerSize returns the number of trailer bytes m adds to a block.
func (m LBPMethod) TrailerSize() int {
	if m == LBPNone {
		return 0
	}
	return LBPSize
}

// ComputeLBP returns the protection checksum of data under m.
func ComputeLBP(m LBPMethod, data []byte) uint32 {
	switch m {
	case LBPRSCRC:
		return rscrc.Checksum(data)
	case LBPCRC32C:
		return crc.New(data).Value()
	default:
		return 0
	}
}

// AppendLBP appends the protection trailer of data under m to dst. A CRC32C
// content checksum of data already computed by the caller may be passed as
// contentCRC to avoid recomputing it; it is only used by the CRC32C method.
func AppendLBP(dst []byte, m LBPMethod, data []byte, contentCRC *uint32) []byte {
	if m == LBPNone {
		return dst
	}
	var v uint32
	if m == LBPCRC32C && contentCRC != nil {
		v = *contentCRC
	} else {
		v = ComputeLBP(m, data)
	}
	return binary.BigEndian.AppendUint32(dst, v)
}

// VerifyLBP checks the protection trailer at the end of block and returns the
// payload preceding it. A block too short to carry a trailer, or whose
// trailer does not match, fails with an error marked ErrChecksumMismatch.
func VerifyLBP(m LBPMethod, block []byte) ([]byte, error) {
	if m == LBPNone {
		return block, nil
	}
	if len(block) < LBPSize {
		return nil, errors.Mark(
			errors.Newf("vtape: %d byte block too short for a %s trailer", len(block), m), base.ErrChecksumMismatch)
	}
	payload, trailer := block[:len(block)-LBPSize], block[len(block)-LBPSize:]
	want := binary.BigEndian.Uint32(trailer)
	if got := ComputeLBP(m, payload); got != want {
		return nil, errors.Mark(
			errors.Newf("vtape: %s protection mismatch: computed %08x, trailer %08x", m, got, want),
			base.ErrChecksumMismatch)
	}
	return payload, nil
}
