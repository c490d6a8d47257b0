// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/blockcodec"
	"github.com/cockroachdb/vtape/mam"
	"github.com/cockroachdb/vtape/record"
)

// WriteResult is the outcome of a block write.
type WriteResult struct {
	// Block is the number the block was written as.
	Block BlockNum
	// Written is the number of payload bytes written, trailer excluded.
	Written int
	// PhysicalSize is the number of bytes stored for the block.
	PhysicalSize uint32
	// EarlyWarning is set when the block was written inside the medium's
	// early-warning zone. Writing may continue until the end of medium.
	EarlyWarning bool
}

// WriteBlock writes data as a block at the cursor, discarding the block at
// the cursor and everything after it, and leaves the cursor at the new end of
// data. When lbp is not LBPNone data ends in a protection trailer, which is
// verified and stripped before the block is stored.
//
// Capacity is judged on the physical offset the block would land at, before
// it is written: at or past the medium's capacity the write fails with
// ErrEndOfMedium and nothing is written; inside the early-warning zone the
// write proceeds and reports EarlyWarning.
func (s *Session) WriteBlock(data []byte, lbp LBPMethod) (WriteResult, error) {
	if err := s.checkBlockOp(); err != nil {
		return WriteResult{}, err
	}
	if err := s.checkWritable(); err != nil {
		return WriteResult{}, err
	}
	payload, err := blockcodec.VerifyLBP(lbp, data)
	if err != nil {
		s.metrics.Errors.Checksum++
		return WriteResult{}, errors.Wrapf(err, "vtape: writing block %s", s.cur.Num)
	}
	earlyWarning, err := s.checkCapacity()
	if err != nil {
		return WriteResult{}, err
	}

	enc, err := s.enc.Encode(payload)
	if err != nil {
		return WriteResult{}, err
	}
	if err := s.truncateAtCursor(); err != nil {
		return WriteResult{}, err
	}
	b, err := s.backend.Append(enc.Block, enc.Stored)
	if err != nil {
		return WriteResult{}, s.noteErr(err)
	}
	s.endOfData()
	s.wormBlank = false
	s.mam.RecordWrite(uint64(len(payload)))
	s.mam.SetFrontier(s.cur.DataOffset)

	s.metrics.Write.Blocks++
	s.metrics.Write.LogicalBytes += uint64(len(payload))
	s.metrics.Write.PhysicalBytes += uint64(b.PhysicalSize)
	if earlyWarning {
		s.metrics.Write.EarlyWarnings++
		s.opts.EventListener.EarlyWarning(CapacityInfo{
			PCL:         s.pcl,
			Offset:      b.DataOffset,
			MaxCapacity: s.mam.MaxCapacity,
			Remaining:   s.mam.RemainingCapacity,
		})
	}
	return WriteResult{
		Block:        b.Num,
		Written:      len(payload),
		PhysicalSize: b.PhysicalSize,
		EarlyWarning: earlyWarning,
	}, nil
}

// WriteFilemarks writes count filemarks at the cursor, discarding the block
// at the cursor and everything after it. A count of zero writes nothing and
// instead makes everything written so far durable, MAM included.
func (s *Session) WriteFilemarks(count int) error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	if count < 0 {
		return errors.Newf("vtape: negative filemark count %d", count)
	}
	if count == 0 {
		return s.flush()
	}
	if err := s.checkWritable(); err != nil {
		return err
	}
	if _, err := s.checkCapacity(); err != nil {
		return err
	}
	if err := s.truncateAtCursor(); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if _, err := s.backend.Append(record.Block{Kind: record.KindFilemark}, nil); err != nil {
			s.endOfData()
			return s.noteErr(err)
		}
		s.metrics.Write.Filemarks++
	}
	s.endOfData()
	s.wormBlank = false
	s.mam.SetFrontier(s.cur.DataOffset)
	return nil
}

// flush persists the MAM and syncs the medium.
func (s *Session) flush() error {
	s.metrics.Write.Flushes++
	if err := s.backend.WriteMAM(&s.mam); err != nil {
		return s.noteErr(err)
	}
	return s.noteErr(s.sync())
}

// sync makes the medium durable, recording the latency if the options ask
// for it.
func (s *Session) sync() error {
	start := crtime.NowMono()
	err := s.backend.Sync()
	if h := s.opts.SyncLatency; h != nil {
		h.Observe(float64(start.Elapsed()))
	}
	return err
}

// Format erases the medium: every block and filemark is discarded. The cursor
// must be at block 0. WORM media cannot be formatted.
func (s *Session) Format() error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	if s.cur.Num != 0 {
		return errors.Mark(errors.Newf("vtape: format at block %s", s.cur.Num), base.ErrNotAtBeginning)
	}
	if s.mam.Type == mam.WORM {
		return errors.Mark(errors.Newf("vtape: WORM medium %s cannot be formatted", errors.Safe(s.pcl)),
			base.ErrWriteProtected)
	}
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.truncateAtCursor(); err != nil {
		return err
	}
	s.mam.SetFrontier(s.cur.DataOffset)
	return s.noteErr(s.backend.WriteMAM(&s.mam))
}

// checkWritable returns an error marked ErrWriteProtected if the medium
// refuses a write at the cursor.
func (s *Session) checkWritable() error {
	if !s.mam.Writable() {
		if s.mam.Type == mam.Clean {
			return errors.Mark(errors.Newf("vtape: medium %s is a cleaning cartridge", errors.Safe(s.pcl)),
				base.ErrWriteProtected)
		}
		return errors.Mark(errors.Newf("vtape: medium %s is write protected", errors.Safe(s.pcl)),
			base.ErrWriteProtected)
	}
	if s.mam.Type == mam.WORM && !s.atEndOfData() && !(s.wormBlank && s.cur.Num == 0) {
		return errors.Mark(
			errors.Newf("vtape: WORM medium %s cannot be overwritten at block %s", errors.Safe(s.pcl), s.cur.Num),
			base.ErrWriteProtected)
	}
	return nil
}

// checkCapacity judges a write landing at the cursor's physical offset. It
// returns an error marked ErrEndOfMedium if the offset has reached the
// medium's capacity, and reports whether it lies in the early-warning zone.
func (s *Session) checkCapacity() (earlyWarning bool, _ error) {
	off := s.cur.DataOffset
	capacity := s.mam.MaxCapacity
	if off >= capacity {
		s.metrics.Write.EndOfMedium++
		return false, errors.Mark(
			errors.Newf("vtape: medium %s full: block %s at offset %d, capacity %d",
				errors.Safe(s.pcl), s.cur.Num, off, capacity),
			base.ErrEndOfMedium)
	}
	var warn uint64
	if zone := s.mam.EarlyWarningZone; zone < capacity {
		warn = capacity - zone
	}
	return off >= warn && s.mam.EarlyWarningZone > 0, nil
}

// truncateAtCursor discards the block at the cursor and everything after it.
// It does nothing at end of data.
func (s *Session) truncateAtCursor() error {
	if s.atEndOfData() {
		return nil
	}
	from := s.cur.Num
	eod := s.backend.EndOfData()
	fm := s.backend.Filemarks()
	info := TruncateInfo{
		PCL:       s.pcl,
		From:      from,
		Blocks:    int(eod.Num - from),
		Filemarks: fm.Len() - fm.Search(from),
	}
	if err := s.backend.TruncateFrom(from); err != nil {
		return s.noteErr(err)
	}
	s.endOfData()
	s.metrics.Truncate.Count++
	s.metrics.Truncate.Blocks += int64(info.Blocks)
	s.opts.EventListener.Truncated(info)
	return nil
}
