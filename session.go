// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package vtape provides a software tape drive: a Session loads a virtual
// cartridge (a medium) from disk and exposes the sequential-access operations
// a tape drive offers over it. Blocks are written at the cursor, truncating
// whatever followed; reads, spacing by blocks or filemarks, and absolute
// positioning move the cursor over the medium's dense sequence of blocks.
//
// A Session is driven by one caller at a time and is not safe for concurrent
// use.
package vtape // import "github.com/cockroachdb/vtape"

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/blockcodec"
	"github.com/cockroachdb/vtape/internal/compression"
	"github.com/cockroachdb/vtape/mam"
	"github.com/cockroachdb/vtape/record"
	"github.com/cockroachdb/vtape/storage"
)

// Session is a tape drive. It holds at most one loaded medium, whose block
// store, filemark index, MAM and cursor it owns exclusively until Unload.
type Session struct {
	home string
	opts *Options

	pcl     string
	backend storage.Backend
	// mam is the session's working copy of the medium's MAM. Its counters
	// are persisted on flush, RewriteMetadata and Unload.
	mam mam.MAM
	// cur is the record of the block the cursor rests at. At end of data it
	// is the synthesized end-of-data record.
	cur record.Block
	// wormBlank is computed at rewind: it is set when a WORM medium was
	// found blank and so may be written from block 0.
	wormBlank bool
	// corrupt is the first corruption or storage failure observed on the
	// loaded medium. While set, block operations fail.
	corrupt error

	key     *blockcodec.Key
	enc     *blockcodec.Encoder
	dec     blockcodec.Decoder
	readBuf []byte

	metrics Metrics
}

// NewSession returns a session over the media kept in the directory home.
// No medium is loaded.
func NewSession(home string, opts *Options) *Session {
	opts = opts.Clone()
	opts.EnsureDefaults()
	return &Session{home: home, opts: opts}
}

// CreateParams describes a medium to create.
type CreateParams struct {
	Type MediumType
	// Capacity is the number of physical payload bytes the medium holds.
	Capacity uint64
	// EarlyWarningZone is the distance before Capacity at which writes start
	// reporting early warning. Zero selects 1% of Capacity.
	EarlyWarningZone uint64
	// Serial, DensityName and DensityCode are recorded in the MAM.
	Serial      string
	DensityName string
	DensityCode uint8
}

// Create creates a medium named pcl in the directory home. It returns an
// error marked ErrExist, without modifying anything, if the medium already
// exists.
func Create(home, pcl string, params CreateParams, opts *Options) error {
	opts = opts.Clone()
	opts.EnsureDefaults()
	return create(home, pcl, params, opts)
}

// Create creates a medium named pcl in the session's home directory. The
// loaded medium, if any, is unaffected.
func (s *Session) Create(pcl string, params CreateParams) error {
	return create(s.home, pcl, params, s.opts)
}

func create(home, pcl string, params CreateParams, opts *Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if pcl == "" || len(pcl) > mam.BarcodeLen {
		return errors.Newf("vtape: invalid barcode %q", pcl)
	}
	zone := params.EarlyWarningZone
	if zone == 0 {
		zone = params.Capacity / 100
	}
	m := mam.MAM{
		Type:              params.Type,
		MaxCapacity:       params.Capacity,
		RemainingCapacity: params.Capacity,
		EarlyWarningZone:  zone,
		Barcode:           pcl,
		Serial:            params.Serial,
		Manufacturer:      opts.Manufacturer,
		ManufactureDate:   opts.private.timeNow().Format("20060102"),
		DensityName:       params.DensityName,
		DensityCode:       params.DensityCode,
	}
	fs := opts.FS
	if err := fs.MkdirAll(home, 0755); err != nil {
		return base.IOErrorf(err, "vtape: creating home %q", home)
	}
	err := storage.Create(fs, fs.PathJoin(home, pcl), opts.Format, &m)
	opts.EventListener.MediumCreated(MediumCreateInfo{
		PCL:      pcl,
		Format:   opts.Format,
		Type:     params.Type,
		Capacity: params.Capacity,
		Err:      err,
	})
	return err
}

// Loaded returns true if a medium is loaded.
func (s *Session) Loaded() bool { return s.backend != nil }

// PCL returns the barcode of the loaded medium, or "" if none is loaded.
func (s *Session) PCL() string { return s.pcl }

// Load loads the medium named pcl and rewinds it. The load is recorded in the
// medium's MAM.
func (s *Session) Load(pcl string) error {
	if s.backend != nil {
		return errors.Newf("vtape: medium %s is already loaded", errors.Safe(s.pcl))
	}
	fs := s.opts.FS
	b, err := storage.Open(fs, fs.PathJoin(s.home, pcl))
	if err != nil {
		if IsCorruptionError(err) {
			s.metrics.Errors.Corruption++
			s.opts.EventListener.CorruptionDetected(CorruptionInfo{PCL: pcl, Err: err})
		}
		s.opts.EventListener.MediumLoaded(MediumInfo{PCL: pcl, Err: err})
		return err
	}

	m := b.MAM()
	m.RecordLoad()
	m.SetFrontier(b.EndOfData().DataOffset)
	if err := b.WriteMAM(&m); err != nil {
		err = errors.CombineErrors(err, b.Close())
		s.opts.EventListener.MediumLoaded(MediumInfo{PCL: pcl, Err: err})
		return err
	}

	s.pcl = pcl
	s.backend = b
	s.mam = m
	s.corrupt = nil
	s.resetCodec()
	if err := s.rewind(); err != nil {
		// A medium whose first record is unreadable stays loaded so that it
		// can be unloaded; every block operation reports the corruption.
		s.opts.EventListener.MediumLoaded(MediumInfo{PCL: pcl, Err: err})
		return err
	}
	s.metrics.Loads++
	s.opts.EventListener.MediumLoaded(s.mediumInfo())
	return nil
}

// resetCodec configures the block encoder for the loaded medium. Null media
// are never compressed, checksummed or encrypted.
func (s *Session) resetCodec() {
	if s.enc != nil {
		s.enc.Close()
	}
	if s.mam.Type == mam.Null {
		s.enc = blockcodec.NewEncoder(compression.NoCompression, false)
		return
	}
	s.enc = blockcodec.NewEncoder(s.opts.Compression, !s.opts.DisableChecksums)
	s.enc.SetKey(s.key)
}

// Unload flushes the MAM and releases the loaded medium. The MAM of a medium
// found corrupt, or whose storage failed, is not rewritten.
func (s *Session) Unload() error {
	if s.backend == nil {
		return errNotPresent()
	}
	info := s.mediumInfo()
	var err error
	if s.corrupt == nil {
		err = s.backend.WriteMAM(&s.mam)
		if err == nil {
			err = s.sync()
		}
	}
	err = errors.CombineErrors(err, s.backend.Close())
	s.backend = nil
	s.pcl = ""
	s.mam = mam.MAM{}
	s.cur = record.Block{}
	s.wormBlank = false
	s.corrupt = nil
	info.Err = err
	s.opts.EventListener.MediumUnloaded(info)
	return err
}

// Close unloads the loaded medium, if any, and releases the session.
func (s *Session) Close() error {
	var err error
	if s.backend != nil {
		err = s.Unload()
	}
	if s.enc != nil {
		s.enc.Close()
		s.enc = nil
	}
	return err
}

// SetKey sets the AES-256 key blocks are encrypted with from now on, along
// with the key-associated data recorded with each block. Blocks encrypted
// with another key cannot be read until their key is set. A nil key turns
// encryption off.
func (s *Session) SetKey(key, ukad, akad []byte) error {
	var k *blockcodec.Key
	if key != nil {
		var err error
		if k, err = blockcodec.NewKey(key, ukad, akad); err != nil {
			return err
		}
	}
	s.key = k
	s.dec.SetKey(k)
	if s.enc != nil && s.mam.Type != mam.Null {
		s.enc.SetKey(k)
	}
	return nil
}

// MAM returns a copy of the loaded medium's MAM, including the counters
// accumulated since they were last persisted.
func (s *Session) MAM() (MAM, error) {
	if s.backend == nil {
		return MAM{}, errNotPresent()
	}
	return s.mam, nil
}

// MediumFormat returns the loaded medium's on-disk format.
func (s *Session) MediumFormat() (Format, error) {
	if s.backend == nil {
		return 0, errNotPresent()
	}
	return s.backend.Format(), nil
}

// Filemarks returns the block numbers of the loaded medium's filemarks.
func (s *Session) Filemarks() []BlockNum {
	if s.backend == nil {
		return nil
	}
	return s.backend.Filemarks().Marks()
}

// EndOfData returns the block number and physical offset of the loaded
// medium's end of data.
func (s *Session) EndOfData() (BlockNum, uint64) {
	if s.backend == nil {
		return 0, 0
	}
	eod := s.backend.EndOfData()
	return eod.Num, eod.DataOffset
}

// CurrentBlock returns the block number the cursor rests at.
func (s *Session) CurrentBlock() BlockNum { return s.cur.Num }

// CurrentOffset returns the physical offset of the block the cursor rests
// at.
func (s *Session) CurrentOffset() uint64 { return s.cur.DataOffset }

// RewriteMetadata persists the MAM, including the counters accumulated since
// the medium was loaded.
func (s *Session) RewriteMetadata() error {
	if err := s.checkBlockOp(); err != nil {
		return err
	}
	return s.noteErr(s.backend.WriteMAM(&s.mam))
}

// Metrics returns a snapshot of the session's metrics.
func (s *Session) Metrics() *Metrics {
	m := s.metrics
	if s.backend != nil {
		eod := s.backend.EndOfData()
		m.Medium.Loaded = true
		m.Medium.Corrupt = s.corrupt != nil
		m.Medium.PCL = s.pcl
		m.Medium.Format = s.backend.Format()
		m.Medium.Type = s.mam.Type
		m.Medium.Position = s.cur.Num
		m.Medium.Blocks = eod.Num
		m.Medium.Filemarks = s.backend.Filemarks().Len()
		m.Medium.Frontier = eod.DataOffset
		m.Medium.MaxCapacity = s.mam.MaxCapacity
		m.Medium.RemainingCapacity = s.mam.RemainingCapacity
	}
	return &m
}

func (s *Session) mediumInfo() MediumInfo {
	if s.backend == nil {
		return MediumInfo{}
	}
	return MediumInfo{
		PCL:       s.pcl,
		Format:    s.backend.Format(),
		Type:      s.mam.Type,
		Blocks:    s.backend.EndOfData().Num,
		Filemarks: s.backend.Filemarks().Len(),
		LoadCount: s.mam.LoadCount,
	}
}

func errNotPresent() error {
	return errors.Mark(errors.New("vtape: no medium loaded"), base.ErrMediumNotPresent)
}

// checkBlockOp returns the error a block operation fails with before doing
// anything: no medium, or a medium already found corrupt.
func (s *Session) checkBlockOp() error {
	if s.backend == nil {
		return errNotPresent()
	}
	if s.corrupt != nil {
		return errors.Mark(
			errors.Wrapf(s.corrupt, "vtape: medium %s must be unloaded and reloaded", errors.Safe(s.pcl)),
			base.ErrCorruption)
	}
	return nil
}

// noteErr records err in the session's metrics and, if it is a storage
// failure or shows the medium to be corrupt, puts the session in the corrupt
// state: block operations fail until the medium is unloaded and reloaded. A
// failed write whose rollback succeeded leaves nothing of itself on the
// medium, so the reload finds the medium as it was before the write. It
// returns err.
func (s *Session) noteErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, base.ErrChecksumMismatch):
		s.metrics.Errors.Checksum++
	case errors.Is(err, base.ErrDecompression):
		s.metrics.Errors.Decompression++
	}
	if errors.Is(err, base.ErrIO) {
		s.metrics.Errors.IO++
	}
	if s.corrupt != nil {
		return err
	}
	corrupt := IsCorruptionError(err)
	if corrupt || errors.Is(err, base.ErrIO) {
		s.corrupt = err
		if corrupt {
			s.metrics.Errors.Corruption++
		}
		s.opts.EventListener.CorruptionDetected(CorruptionInfo{PCL: s.pcl, Block: s.cur.Num, Err: err})
	}
	return err
}

// seek moves the cursor to block n, which must not be past end of data.
func (s *Session) seek(n BlockNum) error {
	b, err := s.backend.ReadRecord(n)
	if err != nil {
		return s.noteErr(err)
	}
	s.cur = b
	return nil
}

// endOfData moves the cursor to end of data.
func (s *Session) endOfData() {
	s.cur = s.backend.EndOfData()
}
