// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tool implements the vtape command line utilities: creating media,
// dumping and verifying their contents, and editing their MAM.
package tool

import (
	"github.com/cockroachdb/vtape"
	"github.com/spf13/cobra"
)

// T is the container for all of the tape tools.
type T struct {
	Commands []*cobra.Command

	opts *vtape.Options
	// home is the directory holding the media.
	home string
}

// New creates a new set of tape tools operating on the file system and
// options of opts. A nil opts uses the defaults.
func New(opts *vtape.Options) *T {
	opts = opts.Clone()
	opts.EnsureDefaults()
	t := &T{opts: opts}

	t.Commands = []*cobra.Command{
		t.newMktape(),
		t.newDump(),
		t.newInfo(),
		t.newVerify(),
		t.newSet(),
	}
	for _, c := range t.Commands {
		c.Flags().StringVar(&t.home, "home", ".", "directory holding the media")
	}
	return t
}

// mediumPath returns the path of the medium named pcl.
func (t *T) mediumPath(pcl string) string {
	return t.opts.FS.PathJoin(t.home, pcl)
}
