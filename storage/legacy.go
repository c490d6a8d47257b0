// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/mam"
	"github.com/cockroachdb/vtape/record"
	"github.com/cockroachdb/vtape/vfs"
)

// legacy is the single-file medium format. The file starts with a BOT header
// whose payload is the MAM, followed by one header per block, each followed by
// its payload, and ends with an end-of-data header. Block offsets are found by
// walking the chain at open; the medium capacity is fixed by the BOT header.
type legacy struct {
	fs   vfs.FS
	path string
	f    vfs.File

	mam       mam.MAM
	capacity  uint64
	filemarks mam.FilemarkIndex
	// offsets[n] is the header offset of block n. offsets has one more entry
	// than there are blocks: the last is the end-of-data header.
	offsets []uint64
	eod     record.LegacyHeader

	hdrBuf [record.LegacyHeaderSize]byte
}

var _ Backend = (*legacy)(nil)

const legacyMAMOffset = record.LegacyHeaderSize

func createLegacy(fs vfs.FS, path string, m *mam.MAM) error {
	if m.Type == mam.Null {
		return errors.Mark(errors.Newf("vtape: null media require the indexed format"), base.ErrNotSupported)
	}
	if ok, err := vfs.Exists(fs, path); err != nil {
		return base.IOErrorf(err, "vtape: creating medium %q", path)
	} else if ok {
		return errors.Mark(errors.Newf("vtape: medium %q already exists", path), base.ErrExist)
	}

	buf := make([]byte, 2*record.LegacyHeaderSize+mam.Size)
	if err := m.Encode(buf[legacyMAMOffset:]); err != nil {
		return err
	}
	eodOff := uint64(record.LegacyHeaderSize + mam.Size)
	bot := record.LegacyHeader{
		Block: record.Block{
			Kind:         record.KindBOT,
			LogicalSize:  mam.Size,
			PhysicalSize: mam.Size,
			DataOffset:   legacyMAMOffset,
		},
		Next:     eodOff,
		Capacity: m.MaxCapacity,
	}
	bot.Encode(buf)
	eod := record.LegacyHeader{
		Block: record.Block{Kind: record.KindEndOfData},
		Prev:  0,
		This:  eodOff,
		Next:  eodOff,
	}
	eod.Encode(buf[eodOff:])
	// The medium is written under a temporary name and renamed into place, so
	// that an interrupted creation never leaves a partial medium at path.
	tmp := path + tmpSuffix
	if err := createFile(fs, tmp, buf); err != nil {
		_ = fs.Remove(tmp)
		return base.IOErrorf(err, "vtape: creating medium %q", path)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return base.IOErrorf(err, "vtape: creating medium %q", path)
	}
	if err := vfs.SyncDir(fs, fs.PathDir(path)); err != nil {
		return base.IOErrorf(err, "vtape: syncing directory of medium %q", path)
	}
	return nil
}

func openLegacy(fs vfs.FS, path string) (_ Backend, err error) {
	f, err := fs.OpenReadWrite(path)
	if err != nil {
		return nil, base.IOErrorf(err, "vtape: opening medium %q", path)
	}
	s := &legacy{fs: fs, path: path, f: f}
	if err := s.load(); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "vtape: opening medium %q", path)
	}
	return s, nil
}

// load reads the BOT header and MAM and walks the header chain.
func (s *legacy) load() error {
	size, err := vfs.Size(s.f)
	if err != nil {
		return base.IOErrorf(err, "vtape: stat of medium file")
	}
	bot, err := s.readHeader(0, uint64(size))
	if err != nil {
		return err
	}
	if bot.Kind != record.KindBOT || bot.PhysicalSize != mam.Size {
		return base.CorruptionErrorf("vtape: medium does not start with a BOT header")
	}
	var mbuf [mam.Size]byte
	if err := readFull(s.f, mbuf[:], legacyMAMOffset); err != nil {
		return base.IOErrorf(err, "vtape: reading MAM")
	}
	if s.mam, err = mam.Decode(mbuf[:]); err != nil {
		return err
	}
	if s.mam.Type == mam.Null {
		return base.CorruptionErrorf("vtape: legacy medium records a null medium type")
	}
	s.capacity = bot.Capacity
	s.mam.MaxCapacity = bot.Capacity

	prev, off := uint64(0), bot.Next
	for n := base.BlockNum(0); ; n++ {
		h, err := s.readHeader(off, uint64(size))
		if err != nil {
			return err
		}
		switch {
		case h.Kind == record.KindBOT:
			return base.CorruptionErrorf("vtape: BOT header at %d", off)
		case h.Num != n:
			return base.CorruptionErrorf("vtape: header at %d holds block %s, want %s", off, h.Num, n)
		case h.Prev != prev:
			return base.CorruptionErrorf("vtape: header at %d links back to %d, want %d", off, h.Prev, prev)
		}
		s.offsets = append(s.offsets, off)
		if h.Kind == record.KindEndOfData {
			if end := off + record.LegacyHeaderSize; end != uint64(size) {
				return base.CorruptionErrorf("vtape: medium file holds %d bytes past end of data", uint64(size)-end)
			}
			s.eod = h
			return nil
		}
		if h.Kind == record.KindFilemark {
			if err := s.filemarks.Append(n); err != nil {
				return err
			}
		}
		prev, off = off, h.Next
	}
}

// readHeader reads and decodes the header at off, whose payload must end
// within a file of the given size.
func (s *legacy) readHeader(off, size uint64) (record.LegacyHeader, error) {
	if off+record.LegacyHeaderSize > size {
		return record.LegacyHeader{}, base.CorruptionErrorf("vtape: header at %d is past the end of the medium file", off)
	}
	if err := readFull(s.f, s.hdrBuf[:], off); err != nil {
		return record.LegacyHeader{}, base.IOErrorf(err, "vtape: reading header at %d", off)
	}
	h, err := record.DecodeLegacy(s.hdrBuf[:], off)
	if err != nil {
		return record.LegacyHeader{}, err
	}
	if h.End() > size {
		return record.LegacyHeader{}, base.CorruptionErrorf("vtape: payload of header at %d ends past the medium file", off)
	}
	return h, nil
}

func (s *legacy) Format() Format { return FormatLegacy }

func (s *legacy) MAM() mam.MAM { return s.mam }

func (s *legacy) Filemarks() *mam.FilemarkIndex { return &s.filemarks }

func (s *legacy) EndOfData() record.Block { return s.eod.Block }

// WriteMAM rewrites the BOT payload. The capacity of a legacy medium is fixed
// at creation and cannot be changed.
func (s *legacy) WriteMAM(m *mam.MAM) error {
	if m.MaxCapacity != s.capacity {
		return errors.Mark(errors.Newf("vtape: capacity of a legacy medium is fixed at %d", s.capacity), base.ErrNotSupported)
	}
	if m.Type == mam.Null {
		return errors.Mark(errors.Newf("vtape: null media require the indexed format"), base.ErrNotSupported)
	}
	var buf [mam.Size]byte
	if err := m.Encode(buf[:]); err != nil {
		return err
	}
	if err := writeFull(s.f, buf[:], legacyMAMOffset); err != nil {
		return base.IOErrorf(err, "vtape: writing MAM")
	}
	s.mam = *m
	return nil
}

func (s *legacy) ReadRecord(n base.BlockNum) (record.Block, error) {
	switch {
	case n == s.eod.Num:
		return s.eod.Block, nil
	case n > s.eod.Num:
		return record.Block{}, errPastEndOfData(n, s.eod.Num)
	}
	h, err := s.readHeader(s.offsets[n], s.eod.This)
	if err != nil {
		return record.Block{}, err
	}
	if h.Num != n || h.Kind == record.KindEndOfData || h.Kind == record.KindBOT {
		return record.Block{}, base.CorruptionErrorf("vtape: header at %d no longer describes block %s", s.offsets[n], n)
	}
	return h.Block, nil
}

func (s *legacy) ReadPayload(b *record.Block, buf []byte) error {
	if len(buf) != int(b.PhysicalSize) {
		return errors.AssertionFailedf("vtape: payload buffer of %d bytes for %d byte block", len(buf), b.PhysicalSize)
	}
	if err := readFull(s.f, buf, b.DataOffset); err != nil {
		return base.IOErrorf(err, "vtape: reading payload of block %s", b.Num)
	}
	return nil
}

// Append writes the payload and a new end-of-data header past the current
// end-of-data header, then overwrites that header with the block's.
func (s *legacy) Append(b record.Block, payload []byte) (record.Block, error) {
	if b.Kind != record.KindData && b.Kind != record.KindFilemark {
		return record.Block{}, errors.AssertionFailedf("vtape: appending %s record", b.Kind)
	}
	if len(payload) != int(b.PhysicalSize) {
		return record.Block{}, errors.AssertionFailedf("vtape: %d byte payload for %d byte block", len(payload), b.PhysicalSize)
	}
	if s.eod.Num == base.MaxBlockNum {
		return record.Block{}, base.CorruptionErrorf("vtape: medium holds the maximum number of blocks")
	}
	off := s.eod.This
	h := record.LegacyHeader{
		Block: b,
		Prev:  s.eod.Prev,
		This:  off,
		Next:  off + record.LegacyHeaderSize + uint64(len(payload)),
	}
	h.Num = s.eod.Num
	h.DataOffset = off + record.LegacyHeaderSize
	eod := record.LegacyHeader{
		Block: record.Block{Kind: record.KindEndOfData, Num: h.Num + 1, DataOffset: h.Next + record.LegacyHeaderSize},
		Prev:  off,
		This:  h.Next,
		Next:  h.Next,
	}

	if len(payload) > 0 {
		if err := writeFull(s.f, payload, h.DataOffset); err != nil {
			return record.Block{}, s.rollback(base.IOErrorf(err, "vtape: writing payload of block %s", h.Num))
		}
	}
	eod.Encode(s.hdrBuf[:])
	if err := writeFull(s.f, s.hdrBuf[:], eod.This); err != nil {
		return record.Block{}, s.rollback(base.IOErrorf(err, "vtape: writing end-of-data header"))
	}
	h.Encode(s.hdrBuf[:])
	if err := writeFull(s.f, s.hdrBuf[:], h.This); err != nil {
		return record.Block{}, s.rollback(base.IOErrorf(err, "vtape: writing header of block %s", h.Num))
	}
	if h.Kind == record.KindFilemark {
		if err := s.filemarks.Append(h.Num); err != nil {
			return record.Block{}, s.rollback(err)
		}
	}
	s.offsets = append(s.offsets, eod.This)
	s.eod = eod
	return h.Block, nil
}

// rollback restores the end-of-data header and file length after a failed
// append.
func (s *legacy) rollback(cause error) error {
	err := s.f.Truncate(int64(s.eod.This + record.LegacyHeaderSize))
	if err == nil {
		s.eod.Encode(s.hdrBuf[:])
		err = writeFull(s.f, s.hdrBuf[:], s.eod.This)
	}
	if err != nil {
		return base.MarkInconsistent(errors.WithSecondaryError(cause, err))
	}
	return cause
}

// TruncateFrom shortens the file to end with an end-of-data header at block
// n's offset. The file is truncated before the header is rewritten, so an
// interruption leaves a data header linking past the end of the file, which
// open rejects.
func (s *legacy) TruncateFrom(n base.BlockNum) error {
	if n >= s.eod.Num {
		if n > s.eod.Num {
			return errPastEndOfData(n, s.eod.Num)
		}
		return nil
	}
	off := s.offsets[n]
	h, err := s.readHeader(off, s.eod.This)
	if err != nil {
		return err
	}
	eod := record.LegacyHeader{
		Block: record.Block{Kind: record.KindEndOfData, Num: n, DataOffset: off + record.LegacyHeaderSize},
		Prev:  h.Prev,
		This:  off,
		Next:  off,
	}
	if err := s.f.Truncate(int64(off + record.LegacyHeaderSize)); err != nil {
		return base.MarkInconsistent(base.IOErrorf(err, "vtape: truncating medium file to %d", off))
	}
	eod.Encode(s.hdrBuf[:])
	if err := writeFull(s.f, s.hdrBuf[:], off); err != nil {
		return base.MarkInconsistent(base.IOErrorf(err, "vtape: writing end-of-data header"))
	}
	s.eod = eod
	s.offsets = s.offsets[:n+1]
	s.filemarks.TruncateFrom(n)
	return nil
}

func (s *legacy) Sync() error {
	if err := s.f.Sync(); err != nil {
		return base.IOErrorf(err, "vtape: syncing medium file")
	}
	return nil
}

func (s *legacy) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return base.IOErrorf(err, "vtape: closing medium %q", s.path)
	}
	return nil
}
