// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/blockcodec"
	"github.com/cockroachdb/vtape/internal/compression"
	"github.com/cockroachdb/vtape/mam"
	"github.com/cockroachdb/vtape/storage"
)

// BlockNum exports the base.BlockNum type.
type BlockNum = base.BlockNum

// MediumType exports the mam.MediumType type.
type MediumType = mam.MediumType

// Exported medium types.
const (
	MediumData       = mam.Data
	MediumWORM       = mam.WORM
	MediumClean      = mam.Clean
	MediumDiagnostic = mam.Diagnostic
	MediumNull       = mam.Null
)

// LBPMethod exports the blockcodec.LBPMethod type.
type LBPMethod = blockcodec.LBPMethod

// Exported logical block protection methods.
const (
	LBPNone    = blockcodec.LBPNone
	LBPRSCRC   = blockcodec.LBPRSCRC
	LBPCRC32C  = blockcodec.LBPCRC32C
	LBPTrailer = blockcodec.LBPSize
)

// Format exports the storage.Format type.
type Format = storage.Format

// Exported medium formats.
const (
	FormatIndexed = storage.FormatIndexed
	FormatLegacy  = storage.FormatLegacy
)

// Compression exports the compression.Setting type.
type Compression = compression.Setting

// Exported compression settings.
var (
	NoCompression     = compression.NoCompression
	FastLZCompression = compression.FastLZCompression
	DeflateDefault    = compression.DeflateDefault
	SnappyCompression = compression.SnappyCompression
	MinLZFastest      = compression.MinLZFastest
	ZstdDefault       = compression.ZstdDefault
)

// ParseCompression parses the output of Compression.String.
func ParseCompression(s string) (Compression, error) {
	return compression.ParseSetting(s)
}

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports the base.DefaultLogger value.
var DefaultLogger = base.DefaultLogger

// MAM exports the mam.MAM type.
type MAM = mam.MAM

// AppendLBP appends the protection trailer of data under m to dst, as an
// initiator does before handing a block to WriteBlock.
func AppendLBP(dst []byte, m LBPMethod, data []byte) []byte {
	return blockcodec.AppendLBP(dst, m, data, nil)
}

// ParseLBPMethod parses the output of LBPMethod.String.
func ParseLBPMethod(s string) (LBPMethod, error) {
	return blockcodec.ParseLBPMethod(s)
}

// ParseMediumType parses the output of MediumType.String.
func ParseMediumType(s string) (MediumType, error) {
	return mam.ParseMediumType(s)
}
