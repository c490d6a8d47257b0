// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package storage

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vtape/vfs"
)

// FileType enumerates the types of files found in an indexed medium's
// directory.
type FileType int

// The FileType enumeration.
const (
	FileTypeData FileType = iota
	FileTypeIndex
	FileTypeMeta
)

// tmpSuffix names a legacy medium file while it is being created.
const tmpSuffix = ".tmp"

var fileTypeStrings = [...]string{
	FileTypeData:  "data",
	FileTypeIndex: "indx",
	FileTypeMeta:  "meta",
}

// SafeFormat implements redact.SafeFormatter.
func (ft FileType) SafeFormat(w redact.SafePrinter, _ rune) {
	if ft < 0 || int(ft) >= len(fileTypeStrings) {
		w.Print(redact.SafeString("unknown"))
		return
	}
	w.Print(redact.SafeString(fileTypeStrings[ft]))
}

// String implements fmt.Stringer.
func (ft FileType) String() string {
	return redact.StringWithoutMarkers(ft)
}

// MakeFilename returns the name of a file of the given type.
func MakeFilename(fileType FileType) string {
	if fileType < 0 || int(fileType) >= len(fileTypeStrings) {
		panic(fmt.Sprintf("unknown file type: %d", fileType))
	}
	return fileTypeStrings[fileType]
}

// MakeFilepath builds the path of a file of the given type in the medium
// directory dirname.
func MakeFilepath(fs vfs.FS, dirname string, fileType FileType) string {
	return fs.PathJoin(dirname, MakeFilename(fileType))
}

// ParseFilename parses the type of a file in a medium directory.
func ParseFilename(fs vfs.FS, filename string) (fileType FileType, ok bool) {
	filename = fs.PathBase(filename)
	for i, s := range fileTypeStrings {
		if s == filename {
			return FileType(i), true
		}
	}
	return 0, false
}

// addDetailsToNotExistError annotates an unexpected not-exist error with
// information about the medium directory's contents.
func addDetailsToNotExistError(fs vfs.FS, dirname, filename string, err error) error {
	ls, lsErr := fs.List(dirname)
	if lsErr != nil {
		return errors.WithDetailf(err, "list err: %+v", lsErr)
	}
	var known, unknown int
	for _, f := range ls {
		if _, ok := ParseFilename(fs, f); ok {
			known++
		} else {
			unknown++
		}
	}
	return errors.WithDetailf(err, "filename: %s; directory contains %d medium files, %d unknown",
		filename, known, unknown)
}
