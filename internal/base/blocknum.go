// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"strconv"

	"github.com/cockroachdb/redact"
)

// BlockNum is the logical number of a block on a medium. Block numbers are
// dense: a medium holding N committed records numbers them 0..N-1 and the
// end-of-data position is N.
type BlockNum uint32

// MaxBlockNum is the largest representable block number.
const MaxBlockNum BlockNum = 1<<32 - 1

func (n BlockNum) String() string { return strconv.FormatUint(uint64(n), 10) }

// SafeFormat implements redact.SafeFormatter.
func (n BlockNum) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeUint(n))
}
