// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package storage implements the block stores backing a medium.
//
// Two on-disk formats exist. The indexed format keeps a medium in a directory
// holding three files: the concatenated payloads (data), one fixed-size block
// record per block (indx), and the MAM followed by the filemark index (meta).
// The legacy format keeps a medium in a single file of payloads interleaved
// with headers that are doubly linked by byte offset. Both are exposed through
// the Backend interface; Open picks the implementation from what it finds on
// disk.
package storage // import "github.com/cockroachdb/vtape/storage"

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/mam"
	"github.com/cockroachdb/vtape/record"
	"github.com/cockroachdb/vtape/vfs"
)

// Format identifies an on-disk medium format.
type Format uint8

const (
	// FormatIndexed is the three-file directory format.
	FormatIndexed Format = iota
	// FormatLegacy is the single-file linked-header format.
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatIndexed:
		return "indexed"
	case FormatLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// SafeFormat implements redact.SafeFormatter.
func (f Format) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(f.String()))
}

// ParseFormat parses the output of Format.String.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "indexed":
		return FormatIndexed, nil
	case "legacy":
		return FormatLegacy, nil
	}
	return 0, errors.Errorf("vtape: unknown medium format %q", s)
}

// Backend is the block store of one open medium. Blocks are numbered densely
// from 0; the block after the last committed block is the end-of-data
// position, whose record is synthesized rather than stored.
//
// A Backend is not safe for concurrent use.
type Backend interface {
	// Format returns the medium's on-disk format.
	Format() Format
	// MAM returns the MAM as last read from or written to the medium.
	MAM() mam.MAM
	// WriteMAM rewrites the MAM in place.
	WriteMAM(m *mam.MAM) error
	// Filemarks returns the medium's filemark index. The caller must not
	// modify it.
	Filemarks() *mam.FilemarkIndex
	// EndOfData returns the end-of-data record. Its DataOffset is the
	// writable frontier.
	EndOfData() record.Block
	// ReadRecord returns the record of block n. Reading the end-of-data
	// position returns the synthesized end-of-data record; reading past it
	// returns a *base.ResidualError marked ErrEndOfData.
	ReadRecord(n base.BlockNum) (record.Block, error)
	// ReadPayload reads the stored payload of b into buf, which must be
	// b.PhysicalSize bytes long.
	ReadPayload(b *record.Block, buf []byte) error
	// Append commits b, whose payload holds b.PhysicalSize bytes, at the end
	// of data and returns the record as stored. A failed Append leaves the
	// store as though it had not been called; if that could not be ensured
	// the error is marked ErrInconsistent.
	Append(b record.Block, payload []byte) (record.Block, error)
	// TruncateFrom discards block n and every block after it, along with
	// their payloads and filemarks. Truncating past the end of data returns
	// a *base.ResidualError marked ErrEndOfData. A failure part way through
	// is marked ErrInconsistent; reopening the medium detects the damage.
	TruncateFrom(n base.BlockNum) error
	// Sync makes everything written so far durable.
	Sync() error
	// Close releases the medium's files.
	Close() error
}

// Exists returns true if a medium of either format exists at path.
func Exists(fs vfs.FS, path string) (bool, error) {
	return vfs.Exists(fs, path)
}

// Create creates a new medium at path in the given format, holding m and no
// blocks. It returns an error marked ErrExist, without modifying anything, if
// a medium already exists at path.
func Create(fs vfs.FS, path string, format Format, m *mam.MAM) error {
	switch format {
	case FormatIndexed:
		return createIndexed(fs, path, m)
	case FormatLegacy:
		return createLegacy(fs, path, m)
	default:
		return errors.AssertionFailedf("vtape: unknown medium format %d", format)
	}
}

// Open opens the medium at path. A directory is opened as an indexed medium
// and a regular file as a legacy medium. A missing medium is reported as
// ErrMediumNotPresent; structural damage as ErrCorruption.
func Open(fs vfs.FS, path string) (Backend, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		if oserror.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "vtape: opening medium %q", path), base.ErrMediumNotPresent)
		}
		return nil, base.IOErrorf(err, "vtape: opening medium %q", path)
	}
	if fi.IsDir() {
		return openIndexed(fs, path)
	}
	return openLegacy(fs, path)
}

// readFull reads exactly len(buf) bytes at off. A short read is reported as
// io.ErrUnexpectedEOF.
func readFull(f vfs.File, buf []byte, off uint64) error {
	n, err := f.ReadAt(buf, int64(off))
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// writeFull writes buf at off.
func writeFull(f vfs.File, buf []byte, off uint64) error {
	n, err := f.WriteAt(buf, int64(off))
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	return err
}

// closeAll closes every non-nil file and combines their errors.
func closeAll(files ...vfs.File) error {
	var err error
	for _, f := range files {
		if f != nil {
			err = errors.CombineErrors(err, f.Close())
		}
	}
	return err
}

// errPastEndOfData reports block n addressed past the end-of-data block eod.
// The residual is the number of blocks by which n overshoots eod.
func errPastEndOfData(n, eod base.BlockNum) error {
	cause := errors.Mark(errors.Newf("vtape: block %s is past end of data %s", n, eod), base.ErrEndOfData)
	return base.NewResidualError(cause, int64(n-eod), eod)
}
