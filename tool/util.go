// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape"
	"github.com/cockroachdb/vtape/internal/blockcodec"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// bytesFlag is a byte count flag accepting human readable sizes such as
// "800GiB" or "1.5TB".
type bytesFlag uint64

func (b *bytesFlag) String() string {
	return humanize.IBytes(uint64(*b))
}

func (b *bytesFlag) Type() string {
	return "bytes"
}

func (b *bytesFlag) Set(v string) error {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return errors.Wrapf(err, "invalid size %q", v)
	}
	*b = bytesFlag(n)
	return nil
}

// mediumTypeFlag is a medium type flag.
type mediumTypeFlag vtape.MediumType

func (m *mediumTypeFlag) String() string {
	return vtape.MediumType(*m).String()
}

func (m *mediumTypeFlag) Type() string {
	return "type"
}

func (m *mediumTypeFlag) Set(v string) error {
	t, err := vtape.ParseMediumType(v)
	if err != nil {
		return err
	}
	*m = mediumTypeFlag(t)
	return nil
}

// keyFlag is a hex-encoded encryption key flag.
type keyFlag []byte

func (k *keyFlag) String() string {
	if len(*k) == 0 {
		return ""
	}
	return "<redacted>"
}

func (k *keyFlag) Type() string {
	return "hex"
}

func (k *keyFlag) Set(v string) error {
	b, err := hex.DecodeString(v)
	if err != nil {
		return errors.Wrap(err, "invalid key")
	}
	if len(b) != blockcodec.KeySize {
		return errors.Newf("key is %d bytes, want %d", len(b), blockcodec.KeySize)
	}
	*k = b
	return nil
}

// newTable returns a table writer in the tools' layout.
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader(header)
	tbl.SetAutoFormatHeaders(false)
	tbl.SetAutoWrapText(false)
	return tbl
}

func formatBytes(n uint64) string {
	return fmt.Sprintf("%s (%s)", humanize.Comma(int64(n)), humanize.IBytes(n))
}
