// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package mam defines the medium auxiliary memory (MAM) record describing a
// cartridge, the filemark index, and the metadata file that persists both.
package mam // import "github.com/cockroachdb/vtape/mam"

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vtape/internal/base"
)

// Size is the encoded size of a MAM record.
const Size = 1024

// FormatVersion is the MAM format version written by this package.
const FormatVersion uint32 = 1

// MediumType is the type of a cartridge.
type MediumType uint8

const (
	// Data is an ordinary rewritable cartridge.
	Data MediumType = iota
	// WORM is a write-once cartridge: blocks may only be appended at the end
	// of data.
	WORM
	// Clean is a cleaning cartridge. It refuses all writes.
	Clean
	// Diagnostic is a diagnostic cartridge. It behaves as Data.
	Diagnostic
	// Null is a test cartridge whose payloads are never stored. Reads return
	// zero-filled blocks of the recorded size.
	Null

	numMediumTypes
)

var mediumTypeNames = [...]string{
	Data:       "data",
	WORM:       "worm",
	Clean:      "clean",
	Diagnostic: "diagnostic",
	Null:       "null",
}

func (t MediumType) String() string {
	if t < numMediumTypes {
		return mediumTypeNames[t]
	}
	return fmt.Sprintf("medium-type(%d)", uint8(t))
}

// SafeFormat implements redact.SafeFormatter.
func (t MediumType) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(t.String()))
}

// ParseMediumType parses the output of MediumType.String.
func ParseMediumType(s string) (MediumType, error) {
	for t := Data; t < numMediumTypes; t++ {
		if mediumTypeNames[t] == s {
			return t, nil
		}
	}
	return 0, errors.Errorf("vtape: unknown medium type %q", s)
}

// Flags is the MAM flag bitset.
type Flags uint8

const (
	// FlagWriteProtected marks a medium as administratively write-protected.
	FlagWriteProtected Flags = 1 << iota

	knownFlags = FlagWriteProtected
)

// Field widths of the identity strings.
const (
	BarcodeLen         = 32
	SerialLen          = 32
	ManufacturerLen    = 32
	ManufactureDateLen = 8
	DensityNameLen     = 32
)

// MAM is the metadata describing a cartridge. The encoded layout
// (little-endian) is:
//
//	[0:4)     format version
//	[4]       medium type
//	[5]       flags
//	[8:16)    max capacity
//	[16:24)   remaining capacity
//	[24:32)   alert flags
//	[32:40)   load count
//	[40:48)   lifetime bytes written
//	[48:56)   lifetime bytes read
//	[56:64)   bytes written during the last load
//	[64:72)   bytes read during the last load
//	[72:80)   early-warning zone
//	[80:112)  barcode
//	[112:144) medium serial
//	[144:176) manufacturer
//	[176:184) manufacture date (YYYYMMDD)
//	[184:216) density name
//	[216]     density code
//
// Strings are zero padded; the rest of the record is zero.
type MAM struct {
	Type           MediumType
	WriteProtected bool

	// MaxCapacity is the number of physical payload bytes the medium holds.
	MaxCapacity uint64
	// RemainingCapacity is MaxCapacity less the physical bytes stored.
	RemainingCapacity uint64
	// EarlyWarningZone is the distance before MaxCapacity at which writes
	// start reporting early warning.
	EarlyWarningZone uint64
	AlertFlags       uint64
	LoadCount        uint64

	LifetimeBytesWritten uint64
	LifetimeBytesRead    uint64
	LastLoadBytesWritten uint64
	LastLoadBytesRead    uint64

	Barcode         string
	Serial          string
	Manufacturer    string
	ManufactureDate string
	DensityName     string
	DensityCode     uint8
}

// Encode writes m into buf, which must be at least Size bytes long.
func (m *MAM) Encode(buf []byte) error {
	buf = buf[:Size]
	clear(buf)
	if m.Type >= numMediumTypes {
		return errors.AssertionFailedf("vtape: invalid medium type %d", m.Type)
	}
	binary.LittleEndian.PutUint32(buf[0:4], FormatVersion)
	buf[4] = byte(m.Type)
	var f Flags
	if m.WriteProtected {
		f |= FlagWriteProtected
	}
	buf[5] = byte(f)
	binary.LittleEndian.PutUint64(buf[8:16], m.MaxCapacity)
	binary.LittleEndian.PutUint64(buf[16:24], m.RemainingCapacity)
	binary.LittleEndian.PutUint64(buf[24:32], m.AlertFlags)
	binary.LittleEndian.PutUint64(buf[32:40], m.LoadCount)
	binary.LittleEndian.PutUint64(buf[40:48], m.LifetimeBytesWritten)
	binary.LittleEndian.PutUint64(buf[48:56], m.LifetimeBytesRead)
	binary.LittleEndian.PutUint64(buf[56:64], m.LastLoadBytesWritten)
	binary.LittleEndian.PutUint64(buf[64:72], m.LastLoadBytesRead)
	binary.LittleEndian.PutUint64(buf[72:80], m.EarlyWarningZone)
	for _, s := range []struct {
		name string
		val  string
		dst  []byte
	}{
		{"barcode", m.Barcode, buf[80:112]},
		{"serial", m.Serial, buf[112:144]},
		{"manufacturer", m.Manufacturer, buf[144:176]},
		{"manufacture date", m.ManufactureDate, buf[176:184]},
		{"density name", m.DensityName, buf[184:216]},
	} {
		if len(s.val) > len(s.dst) {
			return errors.Newf("vtape: MAM %s %q longer than %d bytes", redact.SafeString(s.name), s.val, len(s.dst))
		}
		copy(s.dst, s.val)
	}
	buf[216] = m.DensityCode
	return nil
}

// Decode decodes a MAM record, failing closed on unknown versions, medium
// types and flags.
func Decode(buf []byte) (MAM, error) {
	if len(buf) < Size {
		return MAM{}, base.CorruptionErrorf("vtape: MAM truncated to %d bytes", len(buf))
	}
	if v := binary.LittleEndian.Uint32(buf[0:4]); v != FormatVersion {
		return MAM{}, base.CorruptionErrorf("vtape: unknown MAM version %d", v)
	}
	m := MAM{Type: MediumType(buf[4])}
	if m.Type >= numMediumTypes {
		return MAM{}, base.CorruptionErrorf("vtape: unknown medium type %d", buf[4])
	}
	f := Flags(buf[5])
	if unknown := f &^ knownFlags; unknown != 0 {
		return MAM{}, base.CorruptionErrorf("vtape: unknown MAM flags %#x", uint8(unknown))
	}
	m.WriteProtected = f&FlagWriteProtected != 0
	m.MaxCapacity = binary.LittleEndian.Uint64(buf[8:16])
	m.RemainingCapacity = binary.LittleEndian.Uint64(buf[16:24])
	m.AlertFlags = binary.LittleEndian.Uint64(buf[24:32])
	m.LoadCount = binary.LittleEndian.Uint64(buf[32:40])
	m.LifetimeBytesWritten = binary.LittleEndian.Uint64(buf[40:48])
	m.LifetimeBytesRead = binary.LittleEndian.Uint64(buf[48:56])
	m.LastLoadBytesWritten = binary.LittleEndian.Uint64(buf[56:64])
	m.LastLoadBytesRead = binary.LittleEndian.Uint64(buf[64:72])
	m.EarlyWarningZone = binary.LittleEndian.Uint64(buf[72:80])
	m.Barcode = cString(buf[80:112])
	m.Serial = cString(buf[112:144])
	m.Manufacturer = cString(buf[144:176])
	m.ManufactureDate = cString(buf[176:184])
	m.DensityName = cString(buf[184:216])
	m.DensityCode = buf[216]
	if m.RemainingCapacity > m.MaxCapacity {
		return MAM{}, base.CorruptionErrorf("vtape: MAM remaining capacity %d exceeds max capacity %d",
			m.RemainingCapacity, m.MaxCapacity)
	}
	return m, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// RecordLoad accounts for a load of the medium: the load count is bumped and
// the last-load counters restart.
func (m *MAM) RecordLoad() {
	m.LoadCount++
	m.LastLoadBytesWritten = 0
	m.LastLoadBytesRead = 0
}

// RecordWrite accounts for n logical bytes written.
func (m *MAM) RecordWrite(n uint64) {
	m.LifetimeBytesWritten += n
	m.LastLoadBytesWritten += n
}

// RecordRead accounts for n logical bytes read.
func (m *MAM) RecordRead(n uint64) {
	m.LifetimeBytesRead += n
	m.LastLoadBytesRead += n
}

// SetFrontier recomputes the remaining capacity for a medium whose writable
// frontier is at physical offset off.
func (m *MAM) SetFrontier(off uint64) {
	if off >= m.MaxCapacity {
		m.RemainingCapacity = 0
		return
	}
	m.RemainingCapacity = m.MaxCapacity - off
}

// Writable returns false if m forbids all writes regardless of position.
func (m *MAM) Writable() bool {
	return m.Type != Clean && !m.WriteProtected
}
