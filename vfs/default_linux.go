// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build linux

package vfs

import (
	"os"

	"golang.org/x/sys/unix"
)

func wrapOSFile(f *os.File) File {
	return &linuxFile{File: f, fd: f.Fd()}
}

// Assert that linuxFile implements vfs.File.
var _ File = (*linuxFile)(nil)

type linuxFile struct {
	*os.File
	fd uintptr
}

// Sync implements File.Sync. File sizes are part of the data fdatasync(2)
// commits, which is all a medium's files need.
func (f *linuxFile) Sync() error {
	return unix.Fdatasync(int(f.fd))
}
