// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/mam"
)

// ConvertToWORM turns the loaded data medium into a write-once medium. The
// conversion is the only way a medium's type changes while it is loaded.
func (s *Session) ConvertToWORM() error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	if s.mam.Type != mam.Data {
		return errors.Mark(
			errors.Newf("vtape: %s medium %s cannot be converted to WORM", s.mam.Type, errors.Safe(s.pcl)),
			base.ErrNotSupported)
	}
	if err := s.updateMAM(func(m *mam.MAM) { m.Type = mam.WORM }); err != nil {
		return err
	}
	s.wormBlank = s.cur.Num == 0 && s.blank()
	return nil
}

// SetWriteProtected sets or clears the loaded medium's write-protect flag.
func (s *Session) SetWriteProtected(protected bool) error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	return s.updateMAM(func(m *mam.MAM) { m.WriteProtected = protected })
}

// SetCapacity changes the loaded medium's capacity and early-warning zone.
// The capacity of a legacy medium is fixed at creation: changing it fails
// with ErrNotSupported.
func (s *Session) SetCapacity(capacity, earlyWarningZone uint64) error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	frontier := s.backend.EndOfData().DataOffset
	return s.updateMAM(func(m *mam.MAM) {
		m.MaxCapacity = capacity
		m.EarlyWarningZone = earlyWarningZone
		m.SetFrontier(frontier)
	})
}

// updateMAM applies fn to a copy of the MAM and persists it, adopting the
// copy only if it was written.
func (s *Session) updateMAM(fn func(m *mam.MAM)) error {
	m := s.mam
	fn(&m)
	if err := s.backend.WriteMAM(&m); err != nil {
		return s.noteErr(err)
	}
	s.mam = m
	return nil
}
