// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mam

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
)

// FilemarkIndex is the ordered set of block numbers holding filemarks. The
// zero value is an empty index.
type FilemarkIndex struct {
	marks []base.BlockNum
}

// MakeFilemarkIndex returns an index holding marks, which must be strictly
// increasing.
func MakeFilemarkIndex(marks ...base.BlockNum) (FilemarkIndex, error) {
	x := FilemarkIndex{marks: append([]base.BlockNum(nil), marks...)}
	for i := 1; i < len(x.marks); i++ {
		if x.marks[i] <= x.marks[i-1] {
			return FilemarkIndex{}, base.CorruptionErrorf(
				"vtape: filemark index not increasing: %s after %s", x.marks[i], x.marks[i-1])
		}
	}
	return x, nil
}

// Len returns the number of filemarks.
func (x *FilemarkIndex) Len() int { return len(x.marks) }

// At returns the block number of the i-th filemark.
func (x *FilemarkIndex) At(i int) base.BlockNum { return x.marks[i] }

// Marks returns a copy of the filemark block numbers.
func (x *FilemarkIndex) Marks() []base.BlockNum {
	return append([]base.BlockNum(nil), x.marks...)
}

// Append records a filemark at block n, which must follow every filemark
// already recorded.
func (x *FilemarkIndex) Append(n base.BlockNum) error {
	if l := len(x.marks); l > 0 && x.marks[l-1] >= n {
		return errors.AssertionFailedf("vtape: filemark %s appended after %s", n, x.marks[l-1])
	}
	x.marks = append(x.marks, n)
	return nil
}

// Search returns the index of the first filemark at or after block n, or Len
// if there is none.
func (x *FilemarkIndex) Search(n base.BlockNum) int {
	return sort.Search(len(x.marks), func(i int) bool { return x.marks[i] >= n })
}

// Contains returns true if block n is a filemark.
func (x *FilemarkIndex) Contains(n base.BlockNum) bool {
	i := x.Search(n)
	return i < len(x.marks) && x.marks[i] == n
}

// TruncateFrom drops every filemark at or after block n and returns how many
// were dropped.
func (x *FilemarkIndex) TruncateFrom(n base.BlockNum) int {
	i := x.Search(n)
	dropped := len(x.marks) - i
	x.marks = x.marks[:i]
	return dropped
}

// Validate checks that every filemark precedes the end-of-data block eod.
func (x *FilemarkIndex) Validate(eod base.BlockNum) error {
	if l := len(x.marks); l > 0 && x.marks[l-1] >= eod {
		return base.CorruptionErrorf("vtape: filemark at %s at or beyond end of data %s", x.marks[l-1], eod)
	}
	return nil
}
