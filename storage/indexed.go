// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/mam"
	"github.com/cockroachdb/vtape/record"
	"github.com/cockroachdb/vtape/vfs"
)

// indexed is the three-file medium format. The index file holds one block
// record per committed block, so block n is read with a single ReadAt. The
// end-of-data record is never stored: its number is the index file length
// divided by the record size and its data offset is the end of the last
// block's payload.
type indexed struct {
	fs   vfs.FS
	dir  string
	data vfs.File
	indx vfs.File
	meta vfs.File

	mam       mam.MAM
	filemarks mam.FilemarkIndex
	eod       record.Block
	// null is set for media whose payloads are never stored.
	null bool

	recBuf [record.BlockRecordSize]byte
}

var _ Backend = (*indexed)(nil)

func createIndexed(fs vfs.FS, dir string, m *mam.MAM) error {
	dataPath := MakeFilepath(fs, dir, FileTypeData)
	if ok, err := vfs.Exists(fs, dataPath); err != nil {
		return base.IOErrorf(err, "vtape: creating medium %q", dir)
	} else if ok {
		return errors.Mark(errors.Newf("vtape: medium %q already exists", dir), base.ErrExist)
	}
	meta, err := mam.EncodeMeta(m, &mam.FilemarkIndex{})
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return base.IOErrorf(err, "vtape: creating medium %q", dir)
	}

	// The data file is created last so that a medium whose creation was
	// interrupted can be created again. A failed creation removes what it
	// made.
	for _, c := range []struct {
		ft       FileType
		contents []byte
	}{
		{FileTypeMeta, meta},
		{FileTypeIndex, nil},
		{FileTypeData, nil},
	} {
		if err := createFile(fs, MakeFilepath(fs, dir, c.ft), c.contents); err != nil {
			err = base.IOErrorf(err, "vtape: creating medium %q", dir)
			if rerr := fs.RemoveAll(dir); rerr != nil {
				err = errors.WithSecondaryError(err, rerr)
			}
			return err
		}
	}
	for _, d := range []string{dir, fs.PathDir(dir)} {
		if err := vfs.SyncDir(fs, d); err != nil {
			return base.IOErrorf(err, "vtape: syncing directory %q", d)
		}
	}
	return nil
}

func createFile(fs vfs.FS, path string, contents []byte) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	if len(contents) > 0 {
		if err := writeFull(f, contents, 0); err != nil {
			return errors.CombineErrors(err, f.Close())
		}
	}
	if err := f.Sync(); err != nil {
		return errors.CombineErrors(err, f.Close())
	}
	return f.Close()
}

func openIndexed(fs vfs.FS, dir string) (_ Backend, err error) {
	s := &indexed{fs: fs, dir: dir}
	defer func() {
		if err != nil {
			_ = closeAll(s.data, s.indx, s.meta)
		}
	}()
	for _, o := range []struct {
		ft FileType
		f  *vfs.File
	}{
		{FileTypeData, &s.data},
		{FileTypeIndex, &s.indx},
		{FileTypeMeta, &s.meta},
	} {
		path := MakeFilepath(fs, dir, o.ft)
		f, err := fs.OpenReadWrite(path)
		if err != nil {
			if oserror.IsNotExist(err) {
				err = addDetailsToNotExistError(fs, dir, path, err)
				return nil, base.MarkCorruptionError(errors.Wrapf(err, "vtape: medium %q is missing its %s file", dir, o.ft))
			}
			return nil, base.IOErrorf(err, "vtape: opening %q", path)
		}
		*o.f = f
	}
	if err := s.load(); err != nil {
		return nil, errors.Wrapf(err, "vtape: opening medium %q", dir)
	}
	return s, nil
}

// load reads the metadata file and validates the structure of the medium.
func (s *indexed) load() error {
	metaSize, err := vfs.Size(s.meta)
	if err != nil {
		return base.IOErrorf(err, "vtape: stat of metadata file")
	}
	buf := make([]byte, metaSize)
	if err := readFull(s.meta, buf, 0); err != nil {
		return base.IOErrorf(err, "vtape: reading metadata file")
	}
	if s.mam, s.filemarks, err = mam.DecodeMeta(buf); err != nil {
		return err
	}
	s.null = s.mam.Type == mam.Null

	indxSize, err := vfs.Size(s.indx)
	if err != nil {
		return base.IOErrorf(err, "vtape: stat of index file")
	}
	dataSize, err := vfs.Size(s.data)
	if err != nil {
		return base.IOErrorf(err, "vtape: stat of data file")
	}
	if indxSize%record.BlockRecordSize != 0 {
		return base.CorruptionErrorf("vtape: index file size %d is not a multiple of %d",
			indxSize, record.BlockRecordSize)
	}
	n := indxSize / record.BlockRecordSize
	if n > int64(base.MaxBlockNum) {
		return base.CorruptionErrorf("vtape: index file holds %d records", n)
	}
	s.eod = record.Block{Kind: record.KindEndOfData, Num: base.BlockNum(n)}
	if n > 0 {
		last, err := s.readStored(base.BlockNum(n - 1))
		if err != nil {
			return err
		}
		s.eod.DataOffset = last.End()
	}
	if !s.null && s.eod.DataOffset != uint64(dataSize) {
		return base.CorruptionErrorf("vtape: index ends at data offset %d, data file holds %d bytes",
			s.eod.DataOffset, dataSize)
	}
	if err := s.filemarks.Validate(s.eod.Num); err != nil {
		return err
	}
	for i := 0; i < s.filemarks.Len(); i++ {
		b, err := s.readStored(s.filemarks.At(i))
		if err != nil {
			return err
		}
		if b.Kind != record.KindFilemark {
			return base.CorruptionErrorf("vtape: filemark index names %s block %s", b.Kind, b.Num)
		}
	}
	return nil
}

func (s *indexed) Format() Format { return FormatIndexed }

func (s *indexed) MAM() mam.MAM { return s.mam }

func (s *indexed) Filemarks() *mam.FilemarkIndex { return &s.filemarks }

func (s *indexed) EndOfData() record.Block { return s.eod }

func (s *indexed) WriteMAM(m *mam.MAM) error {
	var buf [mam.Size]byte
	if err := m.Encode(buf[:]); err != nil {
		return err
	}
	if err := writeFull(s.meta, buf[:], 0); err != nil {
		return base.IOErrorf(err, "vtape: writing MAM")
	}
	s.mam = *m
	s.null = m.Type == mam.Null
	return nil
}

func (s *indexed) ReadRecord(n base.BlockNum) (record.Block, error) {
	switch {
	case n == s.eod.Num:
		return s.eod, nil
	case n > s.eod.Num:
		return record.Block{}, errPastEndOfData(n, s.eod.Num)
	}
	b, err := s.readStored(n)
	if err != nil {
		return record.Block{}, err
	}
	if b.End() > s.eod.DataOffset {
		return record.Block{}, base.CorruptionErrorf("vtape: block %s ends at %d, past end of data at %d",
			n, b.End(), s.eod.DataOffset)
	}
	return b, nil
}

// readStored reads and decodes the index record of block n.
func (s *indexed) readStored(n base.BlockNum) (record.Block, error) {
	if err := readFull(s.indx, s.recBuf[:], uint64(n)*record.BlockRecordSize); err != nil {
		return record.Block{}, base.IOErrorf(err, "vtape: reading index record %s", n)
	}
	b, err := record.Decode(s.recBuf[:])
	if err != nil {
		return record.Block{}, errors.Wrapf(err, "vtape: index record %s", n)
	}
	if b.Num != n {
		return record.Block{}, base.CorruptionErrorf("vtape: index record %s holds block %s", n, b.Num)
	}
	if b.Kind == record.KindEndOfData {
		return record.Block{}, base.CorruptionErrorf("vtape: index record %s is an end-of-data record", n)
	}
	return b, nil
}

func (s *indexed) ReadPayload(b *record.Block, buf []byte) error {
	if len(buf) != int(b.PhysicalSize) {
		return errors.AssertionFailedf("vtape: payload buffer of %d bytes for %d byte block", len(buf), b.PhysicalSize)
	}
	if s.null {
		clear(buf)
		return nil
	}
	if err := readFull(s.data, buf, b.DataOffset); err != nil {
		return base.IOErrorf(err, "vtape: reading payload of block %s", b.Num)
	}
	return nil
}

func (s *indexed) Append(b record.Block, payload []byte) (record.Block, error) {
	if b.Kind != record.KindData && b.Kind != record.KindFilemark {
		return record.Block{}, errors.AssertionFailedf("vtape: appending %s record", b.Kind)
	}
	if s.eod.Num == base.MaxBlockNum {
		return record.Block{}, base.CorruptionErrorf("vtape: medium holds the maximum number of blocks")
	}
	b.Num = s.eod.Num
	b.DataOffset = s.eod.DataOffset
	if !s.null && len(payload) != int(b.PhysicalSize) {
		return record.Block{}, errors.AssertionFailedf("vtape: %d byte payload for %d byte block", len(payload), b.PhysicalSize)
	}

	if !s.null && len(payload) > 0 {
		if err := writeFull(s.data, payload, b.DataOffset); err != nil {
			return record.Block{}, s.rollback(base.IOErrorf(err, "vtape: writing payload of block %s", b.Num))
		}
	}
	// A filemark enters the filemark index before its index record is
	// written. Stopping in between leaves an entry at the end of data, which
	// open rejects, rather than a filemark record the index does not list.
	if b.Kind == record.KindFilemark {
		if err := s.filemarks.Append(b.Num); err != nil {
			return record.Block{}, err
		}
		if err := s.writeFilemarks(); err != nil {
			return record.Block{}, s.rollbackFilemark(b.Num, err)
		}
	}
	b.Encode(s.recBuf[:])
	if err := writeFull(s.indx, s.recBuf[:], uint64(b.Num)*record.BlockRecordSize); err != nil {
		err = s.rollback(base.IOErrorf(err, "vtape: writing index record %s", b.Num))
		if b.Kind == record.KindFilemark {
			err = s.rollbackFilemark(b.Num, err)
		}
		return record.Block{}, err
	}
	s.eod.Num++
	s.eod.DataOffset = b.End()
	return b, nil
}

// rollback truncates the data and index files back to the end of data after
// a failed append.
func (s *indexed) rollback(cause error) error {
	var err error
	if !s.null {
		if terr := s.data.Truncate(int64(s.eod.DataOffset)); terr != nil {
			err = errors.CombineErrors(err, terr)
		}
	}
	if terr := s.indx.Truncate(int64(s.eod.Num) * record.BlockRecordSize); terr != nil {
		err = errors.CombineErrors(err, terr)
	}
	if err != nil {
		return base.MarkInconsistent(errors.WithSecondaryError(cause, err))
	}
	return cause
}

// rollbackFilemark removes the filemark at n from the filemark index after a
// failed append and rewrites the index.
func (s *indexed) rollbackFilemark(n base.BlockNum, cause error) error {
	s.filemarks.TruncateFrom(n)
	if err := s.writeFilemarks(); err != nil {
		return base.MarkInconsistent(errors.WithSecondaryError(cause, err))
	}
	return cause
}

// writeFilemarks rewrites the filemark section of the metadata file.
func (s *indexed) writeFilemarks() error {
	buf := mam.EncodeFilemarks(&s.filemarks)
	if err := writeFull(s.meta, buf, mam.FilemarksOffset); err != nil {
		return base.IOErrorf(err, "vtape: writing filemark index")
	}
	if err := s.meta.Truncate(int64(mam.FilemarksOffset + len(buf))); err != nil {
		return base.IOErrorf(err, "vtape: truncating filemark index")
	}
	return nil
}

func (s *indexed) TruncateFrom(n base.BlockNum) error {
	if n >= s.eod.Num {
		if n > s.eod.Num {
			return errPastEndOfData(n, s.eod.Num)
		}
		return nil
	}
	b, err := s.ReadRecord(n)
	if err != nil {
		return err
	}
	// The data file is truncated first, then the index, then the filemark
	// index. Stopping after any step leaves an index whose last record ends
	// past the data file, or a filemark past the end of data, both of which
	// open rejects.
	if !s.null {
		if err := s.data.Truncate(int64(b.DataOffset)); err != nil {
			return base.MarkInconsistent(base.IOErrorf(err, "vtape: truncating data file to %d", b.DataOffset))
		}
	}
	if err := s.indx.Truncate(int64(n) * record.BlockRecordSize); err != nil {
		return base.MarkInconsistent(base.IOErrorf(err, "vtape: truncating index file to block %s", n))
	}
	s.eod.Num = n
	s.eod.DataOffset = b.DataOffset
	if s.filemarks.TruncateFrom(n) > 0 {
		if err := s.writeFilemarks(); err != nil {
			return base.MarkInconsistent(err)
		}
	}
	return nil
}

func (s *indexed) Sync() error {
	for _, f := range []struct {
		ft FileType
		f  vfs.File
	}{
		{FileTypeData, s.data},
		{FileTypeIndex, s.indx},
		{FileTypeMeta, s.meta},
	} {
		if err := f.f.Sync(); err != nil {
			return base.IOErrorf(err, "vtape: syncing %s file", f.ft)
		}
	}
	return nil
}

func (s *indexed) Close() error {
	err := closeAll(s.data, s.indx, s.meta)
	s.data, s.indx, s.meta = nil, nil, nil
	if err != nil {
		return base.IOErrorf(err, "vtape: closing medium %q", s.dir)
	}
	return nil
}
