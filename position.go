// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/mam"
	"github.com/cockroachdb/vtape/record"
)

// Rewind moves the cursor to block 0. Rewinding is the only operation that
// decides whether a WORM medium is blank and so writable from block 0.
func (s *Session) Rewind() error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	return s.rewind()
}

func (s *Session) rewind() error {
	s.wormBlank = false
	if err := s.seek(0); err != nil {
		return err
	}
	if s.mam.Type == mam.WORM {
		s.wormBlank = s.blank()
	}
	return nil
}

// blank returns true if the medium holds nothing, or nothing but a single
// filemark at block 0.
func (s *Session) blank() bool {
	eod := s.backend.EndOfData()
	switch eod.Num {
	case 0:
		return true
	case 1:
		fm := s.backend.Filemarks()
		return fm.Len() == 1 && fm.Contains(0)
	}
	return false
}

// PositionToBlock moves the cursor to block n. Positioning past end of data
// leaves the cursor at end of data and returns a *ResidualError marked
// ErrEndOfData carrying the overshoot. Positioning to block 0 rewinds.
func (s *Session) PositionToBlock(n BlockNum) error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	if n == 0 {
		return s.rewind()
	}
	eod := s.backend.EndOfData()
	if n > eod.Num {
		s.endOfData()
		return base.NewResidualError(base.ErrEndOfData, int64(n-eod.Num), eod.Num)
	}
	return s.seek(n)
}

// SpaceBlocks moves the cursor k blocks forward (k > 0) or backward (k < 0).
// Filemarks count as blocks, but crossing one stops the motion: forward just
// past the filemark, backward on it. Stopping early returns a *ResidualError
// marked ErrFilemark, ErrEndOfData or ErrBeginningOfMedium whose residual is
// the number of blocks not moved.
func (s *Session) SpaceBlocks(k int64) error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	switch {
	case k > 0:
		return s.spaceBlocksForward(k)
	case k < 0:
		return s.spaceBlocksBackward(-k)
	}
	return nil
}

func (s *Session) spaceBlocksForward(k int64) error {
	eod := s.backend.EndOfData()
	cur := int64(s.cur.Num)
	target := cur + k
	fm := s.backend.Filemarks()
	if i := fm.Search(s.cur.Num); i < fm.Len() && int64(fm.At(i)) < target {
		past := fm.At(i) + 1
		if err := s.seek(past); err != nil {
			return err
		}
		return base.NewResidualError(base.ErrFilemark, target-int64(past), past)
	}
	if target > int64(eod.Num) {
		s.endOfData()
		return base.NewResidualError(base.ErrEndOfData, target-int64(eod.Num), eod.Num)
	}
	return s.seek(BlockNum(target))
}

func (s *Session) spaceBlocksBackward(k int64) error {
	cur := int64(s.cur.Num)
	target := cur - k
	fm := s.backend.Filemarks()
	if i := fm.Search(s.cur.Num) - 1; i >= 0 && int64(fm.At(i)) >= target {
		at := fm.At(i)
		if err := s.seek(at); err != nil {
			return err
		}
		return base.NewResidualError(base.ErrFilemark, int64(at)-target, at)
	}
	if target < 0 {
		if err := s.seek(0); err != nil {
			return err
		}
		return base.NewResidualError(base.ErrBeginningOfMedium, -target, 0)
	}
	return s.seek(BlockNum(target))
}

// SpaceFilemarks moves the cursor over k filemarks forward (k > 0) or
// backward (k < 0), using the filemark index rather than stepping block by
// block. Forward spacing counts filemarks from the cursor on and lands on the
// block after the k-th; backward spacing counts filemarks before the cursor
// and lands on the k-th. Running out of filemarks leaves the cursor at end of
// data or rewound, returning a *ResidualError marked ErrEndOfData or
// ErrBeginningOfMedium whose residual is the number of filemarks not crossed.
func (s *Session) SpaceFilemarks(k int64) error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	fm := s.backend.Filemarks()
	switch {
	case k > 0:
		first := int64(fm.Search(s.cur.Num))
		last := first + k - 1
		if last >= int64(fm.Len()) {
			s.endOfData()
			return base.NewResidualError(base.ErrEndOfData, last-int64(fm.Len())+1, s.cur.Num)
		}
		return s.seek(fm.At(int(last)) + 1)

	case k < 0:
		first := int64(fm.Search(s.cur.Num)) - 1
		last := first + k + 1
		if last < 0 {
			if err := s.rewind(); err != nil {
				return err
			}
			return base.NewResidualError(base.ErrBeginningOfMedium, -last, 0)
		}
		return s.seek(fm.At(int(last)))
	}
	return nil
}

// SpaceToEndOfData moves the cursor to end of data, where the next write
// appends.
func (s *Session) SpaceToEndOfData() error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	s.endOfData()
	return nil
}

// atEndOfData returns true if the cursor rests at end of data.
func (s *Session) atEndOfData() bool {
	return s.cur.Kind == record.KindEndOfData
}
