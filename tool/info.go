// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/storage"
	"github.com/spf13/cobra"
)

func (t *T) newInfo() *cobra.Command {
	return &cobra.Command{
		Use:   "info <pcl>...",
		Short: "print the MAM of media",
		Long: `
Print the medium auxiliary memory of each medium: its type, capacity, usage
counters and identification.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: t.runInfo,
	}
}

func (t *T) runInfo(cmd *cobra.Command, args []string) error {
	stdout := cmd.OutOrStdout()
	for i, pcl := range args {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		if err := t.info(cmd, pcl); err != nil {
			return err
		}
	}
	return nil
}

func (t *T) info(cmd *cobra.Command, pcl string) (err error) {
	b, err := storage.Open(t.opts.FS, t.mediumPath(pcl))
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, b.Close()) }()

	m := b.MAM()
	eod := b.EndOfData()
	tbl := newTable(cmd.OutOrStdout(), "field", "value")
	for _, row := range [][2]string{
		{"barcode", m.Barcode},
		{"format", b.Format().String()},
		{"type", m.Type.String()},
		{"write protected", fmt.Sprint(m.WriteProtected)},
		{"capacity", formatBytes(m.MaxCapacity)},
		{"remaining", formatBytes(m.RemainingCapacity)},
		{"early warning zone", formatBytes(m.EarlyWarningZone)},
		{"blocks", eod.Num.String()},
		{"filemarks", fmt.Sprint(b.Filemarks().Len())},
		{"loads", fmt.Sprint(m.LoadCount)},
		{"lifetime written", formatBytes(m.LifetimeBytesWritten)},
		{"lifetime read", formatBytes(m.LifetimeBytesRead)},
		{"last load written", formatBytes(m.LastLoadBytesWritten)},
		{"last load read", formatBytes(m.LastLoadBytesRead)},
		{"serial", m.Serial},
		{"manufacturer", m.Manufacturer},
		{"manufactured", m.ManufactureDate},
		{"density", fmt.Sprintf("%s (0x%02x)", m.DensityName, m.DensityCode)},
	} {
		tbl.Append(row[:])
	}
	tbl.Render()
	return nil
}
