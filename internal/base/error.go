// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// The error kinds surfaced by the tape engine. Errors returned by the engine
// are marked with exactly one of these (plus ErrInconsistent where noted) and
// should be tested with errors.Is.
var (
	// ErrMediumNotPresent is returned by block operations when no medium is
	// loaded.
	ErrMediumNotPresent = errors.New("vtape: medium not present")
	// ErrCorruption marks structural validation failures on open and internal
	// consistency failures during operation.
	ErrCorruption = errors.New("vtape: medium format corrupt")
	// ErrEndOfData marks positioning or reads that ran off the writable
	// frontier.
	ErrEndOfData = errors.New("vtape: end of data")
	// ErrBeginningOfMedium marks positioning that ran before block 0.
	ErrBeginningOfMedium = errors.New("vtape: beginning of medium")
	// ErrFilemark marks a read or spacing operation that crossed a filemark.
	ErrFilemark = errors.New("vtape: filemark encountered")
	// ErrShortBlock marks a length mismatch between a request and the block it
	// addressed. It is never fatal.
	ErrShortBlock = errors.New("vtape: incorrect block length")
	// ErrWriteProtected marks WORM violations, writes to cleaning cartridges,
	// and writes to administratively protected media.
	ErrWriteProtected = errors.New("vtape: medium write protected")
	// ErrEndOfMedium marks a write attempted after the frontier passed the
	// medium's capacity.
	ErrEndOfMedium = errors.New("vtape: end of medium")
	// ErrCompression marks a codec failure while compressing a block.
	ErrCompression = errors.New("vtape: compression failure")
	// ErrDecompression marks a codec failure while decompressing a block.
	ErrDecompression = errors.New("vtape: decompression failure")
	// ErrChecksumMismatch marks content CRC and logical block protection
	// verification failures.
	ErrChecksumMismatch = errors.New("vtape: checksum mismatch")
	// ErrIO marks failures of the underlying storage.
	ErrIO = errors.New("vtape: storage i/o failure")
	// ErrInconsistent is added to an ErrIO failure whose recovery could not
	// restore the medium to its pre-write state. The medium must be unloaded
	// and reloaded before it is trusted again.
	ErrInconsistent = errors.New("vtape: medium state inconsistent")
	// ErrEncryptionKey marks a read of an encrypted block without the key it
	// was written with.
	ErrEncryptionKey = errors.New("vtape: encryption key mismatch")
	// ErrNotAtBeginning marks an operation that is only valid at block 0.
	ErrNotAtBeginning = errors.New("vtape: medium not at beginning")
	// ErrExist is returned when creating a medium that already exists.
	ErrExist = errors.New("vtape: medium already exists")
	// ErrNotSupported marks an operation the medium's format cannot perform.
	ErrNotSupported = errors.New("vtape: not supported by medium format")
)

// CorruptionErrorf formats according to a format specifier and returns
// the string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MarkCorruptionError marks given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// IOErrorf wraps err, a failure of the underlying storage, and marks it with
// ErrIO.
func IOErrorf(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIO)
}

// MarkInconsistent additionally marks an I/O failure as having left the
// medium in an untrustworthy state.
func MarkInconsistent(err error) error {
	return errors.Mark(err, ErrInconsistent)
}

// ResidualError reports a condition that left part of a positioning request
// unsatisfied. Cause is one of ErrEndOfData, ErrBeginningOfMedium or
// ErrFilemark; Residual is the count (blocks or filemarks) not moved.
type ResidualError struct {
	Cause    error
	Residual int64
	// Pos is the block the cursor rests at after the operation.
	Pos BlockNum
}

var _ error = (*ResidualError)(nil)

// NewResidualError returns a ResidualError with the given cause.
func NewResidualError(cause error, residual int64, pos BlockNum) *ResidualError {
	return &ResidualError{Cause: cause, Residual: residual, Pos: pos}
}

func (e *ResidualError) Error() string {
	return fmt.Sprint(e)
}

// Format implements fmt.Formatter.
func (e *ResidualError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// SafeFormatError implements errors.SafeFormatter.
func (e *ResidualError) SafeFormatError(p errors.Printer) (next error) {
	p.Printf("%v: residual %d at block %s",
		redact.Safe(e.Cause.Error()), redact.Safe(e.Residual), e.Pos)
	return nil
}

// Unwrap makes errors.Is(err, e.Cause) hold.
func (e *ResidualError) Unwrap() error { return e.Cause }

// Residual returns the residual carried by err, if any.
func Residual(err error) (int64, bool) {
	var re *ResidualError
	if errors.As(err, &re) {
		return re.Residual, true
	}
	return 0, false
}
