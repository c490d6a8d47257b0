// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/blockcodec"
	"github.com/cockroachdb/vtape/internal/compression"
	"github.com/cockroachdb/vtape/record"
)

// ReadResult is the outcome of a block read.
type ReadResult struct {
	// Block is the number of the block read.
	Block BlockNum
	// Data holds the first min(len(dst), block size) bytes of the block,
	// followed by the logical block protection trailer if one was requested.
	Data []byte
	// Residual is the requested length less the block's size. It is negative
	// when the block was longer than requested and its tail was discarded.
	Residual int64
	// IncorrectLength is set when the length mismatch must be reported to
	// the initiator: always for an overlong block, and for a short block
	// unless incorrect-length indications were suppressed.
	IncorrectLength bool
}

// Err returns an error marked ErrShortBlock carrying the residual if the read
// must report an incorrect length, and nil otherwise.
func (r *ReadResult) Err() error {
	if !r.IncorrectLength {
		return nil
	}
	return base.NewResidualError(base.ErrShortBlock, r.Residual, r.Block)
}

// ReadBlock reads the block at the cursor into dst, whose length is the
// requested transfer size, and moves the cursor to the next block. The whole
// block is always decoded and verified; a size mismatch is reported in the
// result rather than as an error. When sili is set a block shorter than
// requested does not count as an incorrect length. When lbp is not LBPNone
// the protection trailer over the returned bytes is appended to Data.
//
// A read at a filemark returns an error marked ErrFilemark and moves past the
// filemark. A read at end of data returns an error marked ErrEndOfData and
// leaves the cursor in place, as does a block that fails to decode.
func (s *Session) ReadBlock(dst []byte, sili bool, lbp LBPMethod) (ReadResult, error) {
	if err := s.checkBlockOp(); err != nil {
		return ReadResult{}, err
	}
	b := s.cur
	switch b.Kind {
	case record.KindEndOfData:
		return ReadResult{Block: b.Num}, errors.Mark(
			errors.Newf("vtape: read at end of data, block %s", b.Num), base.ErrEndOfData)
	case record.KindFilemark:
		s.metrics.Read.Filemarks++
		if err := s.seek(b.Num + 1); err != nil {
			return ReadResult{}, err
		}
		return ReadResult{Block: b.Num}, base.NewResidualError(base.ErrFilemark, int64(len(dst)), b.Num)
	case record.KindData:
	default:
		return ReadResult{}, s.noteErr(base.CorruptionErrorf("vtape: cursor rests on %s record %s", b.Kind, b.Num))
	}

	if cap(s.readBuf) < int(b.PhysicalSize) {
		s.readBuf = make([]byte, b.PhysicalSize)
	}
	stored := s.readBuf[:b.PhysicalSize]
	if err := s.backend.ReadPayload(&b, stored); err != nil {
		return ReadResult{}, s.noteErr(err)
	}
	full, err := s.dec.Decode(&b, stored, dst)
	if err != nil {
		s.opts.EventListener.BlockReadError(BlockReadErrorInfo{
			PCL:         s.pcl,
			Block:       b.Num,
			Compression: b.Compression,
			Cause:       compression.Cause(err),
			Err:         err,
		})
		return ReadResult{}, s.noteErr(err)
	}

	n := min(len(dst), len(full))
	res := ReadResult{
		Block:    b.Num,
		Data:     dst[:n],
		Residual: int64(len(dst)) - int64(b.LogicalSize),
	}
	res.IncorrectLength = res.Residual < 0 || (res.Residual > 0 && !sili)
	if lbp != LBPNone {
		var contentCRC *uint32
		if n == len(full) && b.HasChecksum {
			contentCRC = &b.Checksum
		}
		res.Data = blockcodec.AppendLBP(res.Data, lbp, res.Data, contentCRC)
	}

	if err := s.seek(b.Num + 1); err != nil {
		return ReadResult{}, err
	}
	s.mam.RecordRead(uint64(n))
	s.metrics.Read.Blocks++
	s.metrics.Read.Bytes += uint64(n)
	if res.IncorrectLength {
		s.metrics.Read.IncorrectLength++
	}
	return res, nil
}
