// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape"
	"github.com/cockroachdb/vtape/mam"
	"github.com/cockroachdb/vtape/storage"
	"github.com/spf13/cobra"
)

type setT struct {
	t *T

	worm         bool
	writeProtect bool
	capacity     bytesFlag
	earlyWarning bytesFlag
}

func (t *T) newSet() *cobra.Command {
	s := &setT{t: t}
	cmd := &cobra.Command{
		Use:   "set <pcl>",
		Short: "edit the MAM of a medium",
		Long: `
Edit the medium auxiliary memory of an unloaded medium: convert a data medium
to WORM, set or clear its write-protect flag, or change its capacity. The
capacity of a legacy medium is fixed when it is created.
`,
		Args: cobra.ExactArgs(1),
		RunE: s.run,
	}
	cmd.Flags().BoolVar(&s.worm, "worm", false, "convert a data medium to WORM")
	cmd.Flags().BoolVar(&s.writeProtect, "write-protect", false, "set or clear the write-protect flag")
	cmd.Flags().Var(&s.capacity, "capacity", "medium capacity")
	cmd.Flags().Var(&s.earlyWarning, "early-warning", "early-warning zone")
	return cmd
}

func (s *setT) run(cmd *cobra.Command, args []string) (err error) {
	pcl := args[0]
	b, err := storage.Open(s.t.opts.FS, s.t.mediumPath(pcl))
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, b.Close()) }()

	m := b.MAM()
	flags := cmd.Flags()
	if s.worm {
		if m.Type != mam.Data {
			return errors.Mark(errors.Newf("%s medium %s cannot be converted to WORM", m.Type, pcl),
				vtape.ErrNotSupported)
		}
		m.Type = mam.WORM
	}
	if flags.Changed("write-protect") {
		m.WriteProtected = s.writeProtect
	}
	if flags.Changed("capacity") {
		m.MaxCapacity = uint64(s.capacity)
		m.SetFrontier(b.EndOfData().DataOffset)
	}
	if flags.Changed("early-warning") {
		m.EarlyWarningZone = uint64(s.earlyWarning)
	}
	if err := b.WriteMAM(&m); err != nil {
		return err
	}
	if err := b.Sync(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s medium, capacity %d, early warning %d, write protected %t\n",
		pcl, m.Type, m.MaxCapacity, m.EarlyWarningZone, m.WriteProtected)
	return nil
}
