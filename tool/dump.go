// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/compression"
	"github.com/cockroachdb/vtape/record"
	"github.com/cockroachdb/vtape/storage"
	"github.com/spf13/cobra"
)

type dumpT struct {
	t *T

	start base.BlockNum
	limit int
}

func (t *T) newDump() *cobra.Command {
	d := &dumpT{t: t}
	cmd := &cobra.Command{
		Use:   "dump <pcl>",
		Short: "print the block records of a medium",
		Long: `
Print the record of every block on a medium: its kind, physical offset,
logical and physical sizes, and how its payload is encoded. Payloads are
not read; use verify to check them.
`,
		Args: cobra.ExactArgs(1),
		RunE: d.run,
	}
	cmd.Flags().Uint32Var((*uint32)(&d.start), "start", 0, "first block to print")
	cmd.Flags().IntVar(&d.limit, "limit", 0, "maximum number of blocks to print (0 means all)")
	return cmd
}

func (d *dumpT) run(cmd *cobra.Command, args []string) (err error) {
	b, err := storage.Open(d.t.opts.FS, d.t.mediumPath(args[0]))
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, b.Close()) }()

	stdout := cmd.OutOrStdout()
	eod := b.EndOfData()
	fmt.Fprintf(stdout, "%s (%s): %d blocks, %d filemarks, end of data at offset %d\n",
		args[0], b.Format(), eod.Num, b.Filemarks().Len(), eod.DataOffset)

	tbl := newTable(stdout, "block", "kind", "offset", "logical", "physical", "compression", "crc32c", "encrypted")
	n := d.start
	for ; n < eod.Num && (d.limit == 0 || int(n-d.start) < d.limit); n++ {
		r, err := b.ReadRecord(n)
		if err != nil {
			tbl.Render()
			return err
		}
		tbl.Append(recordRow(&r))
	}
	tbl.Render()
	if n < eod.Num {
		fmt.Fprintf(stdout, "... %d more blocks\n", eod.Num-n)
	}
	return nil
}

func recordRow(r *record.Block) []string {
	row := []string{r.Num.String(), r.Kind.String(), fmt.Sprint(r.DataOffset), "", "", "", "", ""}
	if r.Kind != record.KindData {
		return row
	}
	row[3] = fmt.Sprint(r.LogicalSize)
	row[4] = fmt.Sprint(r.PhysicalSize)
	if r.Compression != compression.None {
		row[5] = r.Compression.String()
	}
	if r.HasChecksum {
		row[6] = fmt.Sprintf("%08x", r.Checksum)
	}
	if e := r.Encryption; e != nil {
		row[7] = fmt.Sprintf("key %x", e.KeyID)
	}
	return row
}
