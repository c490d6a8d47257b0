// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
)

// The error kinds returned by a Session. Test for them with errors.Is; the
// errors carry the block number and sizes involved in their message and
// details.
var (
	ErrMediumNotPresent  = base.ErrMediumNotPresent
	ErrCorruption        = base.ErrCorruption
	ErrEndOfData         = base.ErrEndOfData
	ErrBeginningOfMedium = base.ErrBeginningOfMedium
	ErrFilemark          = base.ErrFilemark
	ErrShortBlock        = base.ErrShortBlock
	ErrWriteProtected    = base.ErrWriteProtected
	ErrEndOfMedium       = base.ErrEndOfMedium
	ErrCompression       = base.ErrCompression
	ErrDecompression     = base.ErrDecompression
	ErrChecksumMismatch  = base.ErrChecksumMismatch
	ErrIO                = base.ErrIO
	ErrInconsistent      = base.ErrInconsistent
	ErrEncryptionKey     = base.ErrEncryptionKey
	ErrNotAtBeginning    = base.ErrNotAtBeginning
	ErrExist             = base.ErrExist
	ErrNotSupported      = base.ErrNotSupported
)

// ResidualError exports the base.ResidualError type.
type ResidualError = base.ResidualError

// Residual returns the residual count carried by err, if any.
func Residual(err error) (int64, bool) {
	return base.Residual(err)
}

// IsCorruptionError returns true if err marks the medium as corrupt: a
// structural validation failure, or an I/O failure that left the medium in an
// inconsistent state.
func IsCorruptionError(err error) bool {
	return errors.IsAny(err, ErrCorruption, ErrInconsistent)
}
