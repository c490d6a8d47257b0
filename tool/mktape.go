// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"

	"github.com/cockroachdb/vtape"
	"github.com/cockroachdb/vtape/storage"
	"github.com/spf13/cobra"
)

type mktapeT struct {
	t *T

	mediumType   mediumTypeFlag
	capacity     bytesFlag
	earlyWarning bytesFlag
	format       string
	serial       string
	densityName  string
	densityCode  uint8
}

func (t *T) newMktape() *cobra.Command {
	m := &mktapeT{t: t, capacity: 8 << 30, format: vtape.FormatIndexed.String()}
	cmd := &cobra.Command{
		Use:   "mktape <pcl>...",
		Short: "create blank media",
		Long: `
Create blank media named by the given barcodes in the home directory. Existing
media are left untouched and reported as errors.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: m.run,
	}
	cmd.Flags().Var(&m.mediumType, "type", "medium type: data, worm, clean, diagnostic or null")
	cmd.Flags().Var(&m.capacity, "capacity", "medium capacity")
	cmd.Flags().Var(&m.earlyWarning, "early-warning", "early-warning zone (default 1% of capacity)")
	cmd.Flags().StringVar(&m.format, "format", m.format, "on-disk format: indexed or legacy")
	cmd.Flags().StringVar(&m.serial, "serial", "", "medium serial number")
	cmd.Flags().StringVar(&m.densityName, "density", "", "density name")
	cmd.Flags().Uint8Var(&m.densityCode, "density-code", 0, "density code")
	return cmd
}

func (m *mktapeT) run(cmd *cobra.Command, args []string) error {
	format, err := storage.ParseFormat(m.format)
	if err != nil {
		return err
	}
	opts := m.t.opts.Clone()
	opts.Format = format
	params := vtape.CreateParams{
		Type:             vtape.MediumType(m.mediumType),
		Capacity:         uint64(m.capacity),
		EarlyWarningZone: uint64(m.earlyWarning),
		Serial:           m.serial,
		DensityName:      m.densityName,
		DensityCode:      m.densityCode,
	}
	stdout := cmd.OutOrStdout()
	for _, pcl := range args {
		if err := vtape.Create(m.t.home, pcl, params, opts); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created %s: %s %s medium, capacity %s\n",
			pcl, format, params.Type, m.capacity.String())
	}
	return nil
}
