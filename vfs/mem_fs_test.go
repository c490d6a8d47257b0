// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"os"
	"sort"
	"testing"

	"github.com/cockroachdb/errors/oserror"
	"github.com/stretchr/testify/require"
)

func writeString(t *testing.T, f File, off int64, s string) {
	t.Helper()
	n, err := f.WriteAt([]byte(s), off)
	require.NoError(t, err)
	require.Equal(t, len(s), n)
}

func readAll(t *testing.T, fs FS, name string) string {
	t.Helper()
	f, err := fs.Open(name)
	require.NoError(t, err)
	defer f.Close()
	size, err := Size(f)
	require.NoError(t, err)
	buf := make([]byte, size)
	if size > 0 {
		_, err = f.ReadAt(buf, 0)
		require.NoError(t, err)
	}
	return string(buf)
}

func TestMemFSBasics(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("a/b", 0755))

	f, err := fs.Create("a/b/data")
	require.NoError(t, err)
	writeString(t, f, 0, "hello")
	writeString(t, f, 8, "world")
	require.NoError(t, f.Close())
	require.Equal(t, "hello\x00\x00\x00world", readAll(t, fs, "a/b/data"))

	// Reads past the end report io.EOF.
	f, err = fs.Open("a/b/data")
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := f.ReadAt(buf, 10)
	require.Equal(t, 3, n)
	require.Equal(t, io.EOF, err)
	_, err = f.WriteAt([]byte("x"), 0)
	require.Error(t, err)
	require.NoError(t, f.Close())

	f, err = fs.OpenReadWrite("a/b/data")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(5))
	writeString(t, f, 5, "!")
	require.NoError(t, f.Close())
	require.Equal(t, "hello!", readAll(t, fs, "a/b/data"))

	_, err = fs.OpenReadWrite("a/b/missing")
	require.True(t, oserror.IsNotExist(err))

	ok, err := Exists(fs, "a/b/data")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = Exists(fs, "a/b/missing")
	require.NoError(t, err)
	require.False(t, ok)

	fi, err := fs.Stat("a/b")
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	require.NoError(t, fs.Rename("a/b/data", "a/b/renamed"))
	names, err := fs.List("a/b")
	require.NoError(t, err)
	require.Equal(t, []string{"renamed"}, names)

	require.Error(t, fs.Remove("a/b"))
	require.NoError(t, fs.RemoveAll("a"))
	require.NoError(t, fs.RemoveAll("a"))
	_, err = fs.Stat("a")
	require.True(t, oserror.IsNotExist(err))
}

func TestMemFSCreateTruncates(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("f")
	require.NoError(t, err)
	writeString(t, f, 0, "contents")
	require.NoError(t, f.Close())

	f, err = fs.Create("f")
	require.NoError(t, err)
	size, err := Size(f)
	require.NoError(t, err)
	require.Equal(t, int64(0), size)
	require.NoError(t, f.Close())
}

func TestMemFSCrashClone(t *testing.T) {
	fs := NewCrashableMem()
	require.NoError(t, fs.MkdirAll("tape", 0755))

	f, err := fs.Create("tape/data")
	require.NoError(t, err)
	writeString(t, f, 0, "synced")
	require.NoError(t, f.Sync())
	require.NoError(t, SyncDir(fs, "tape"))
	require.NoError(t, SyncDir(fs, ""))
	writeString(t, f, 6, "-lost")

	g, err := fs.Create("tape/unsynced")
	require.NoError(t, err)
	require.NoError(t, g.Close())

	crashed := fs.CrashClone(CrashCloneCfg{})
	require.Equal(t, "synced", readAll(t, crashed, "tape/data"))
	_, err = crashed.Stat("tape/unsynced")
	require.True(t, oserror.IsNotExist(err))

	// The original is unaffected.
	require.Equal(t, "synced-lost", readAll(t, fs, "tape/data"))
	require.NoError(t, f.Close())

	defer func() {
		require.NotNil(t, recover())
	}()
	NewMem().CrashClone(CrashCloneCfg{})
}

func TestDefaultFS(t *testing.T) {
	dir := t.TempDir()
	fs := Default
	name := fs.PathJoin(dir, "data")

	f, err := fs.Create(name)
	require.NoError(t, err)
	writeString(t, f, 0, "abcdef")
	require.NoError(t, f.Sync())
	require.NoError(t, f.Truncate(3))
	require.NoError(t, f.Close())
	require.NoError(t, SyncDir(fs, dir))
	require.Equal(t, "abc", readAll(t, fs, name))

	names, err := fs.List(dir)
	require.NoError(t, err)
	sort.Strings(names)
	require.Equal(t, []string{"data"}, names)
	require.Equal(t, "data", fs.PathBase(name))

	_, err = fs.OpenReadWrite(fs.PathJoin(dir, "missing"))
	require.True(t, oserror.IsNotExist(err))
	require.NoError(t, fs.MkdirAll(fs.PathJoin(dir, "x", "y"), os.ModePerm))
	require.NoError(t, fs.RemoveAll(fs.PathJoin(dir, "x")))
}
