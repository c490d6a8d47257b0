// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"github.com/cockroachdb/redact"
	"github.com/dustin/go-humanize"
)

// Metrics holds metrics for a session. The counters accumulate over the
// lifetime of the session, across loads; the Medium section describes the
// medium currently loaded.
type Metrics struct {
	// Loads is the number of successful loads.
	Loads int64

	Medium struct {
		// Loaded is true if a medium is loaded. The remaining fields are zero
		// otherwise.
		Loaded bool
		// Corrupt is true if the loaded medium was found corrupt.
		Corrupt bool
		PCL     string
		Format  Format
		Type    MediumType
		// Position is the block the cursor rests at.
		Position BlockNum
		// Blocks is the end-of-data block number.
		Blocks    BlockNum
		Filemarks int
		// Frontier is the physical offset of the end of data.
		Frontier          uint64
		MaxCapacity       uint64
		RemainingCapacity uint64
	}

	Write struct {
		// Blocks is the number of data blocks written.
		Blocks int64
		// Filemarks is the number of filemarks written.
		Filemarks int64
		// LogicalBytes is the number of payload bytes written, before
		// compression.
		LogicalBytes uint64
		// PhysicalBytes is the number of payload bytes stored.
		PhysicalBytes uint64
		// EarlyWarnings is the number of writes that landed in the
		// early-warning zone.
		EarlyWarnings int64
		// EndOfMedium is the number of writes refused for lack of capacity.
		EndOfMedium int64
		// Flushes is the number of zero-count filemark writes.
		Flushes int64
	}

	Read struct {
		// Blocks is the number of data blocks read.
		Blocks int64
		// Bytes is the number of payload bytes returned, trailers excluded.
		Bytes uint64
		// IncorrectLength is the number of reads whose request size differed
		// from the block size.
		IncorrectLength int64
		// Filemarks is the number of filemarks encountered by reads.
		Filemarks int64
	}

	Truncate struct {
		// Count is the number of overwrite truncations and formats.
		Count int64
		// Blocks is the number of blocks discarded.
		Blocks int64
	}

	Errors struct {
		Checksum      int64
		Decompression int64
		Corruption    int64
		IO            int64
	}
}

// CompressionRatio returns the ratio of logical to physical bytes written, or
// 0 if nothing was written.
func (m *Metrics) CompressionRatio() float64 {
	if m.Write.PhysicalBytes == 0 {
		return 0
	}
	return float64(m.Write.LogicalBytes) / float64(m.Write.PhysicalBytes)
}

// String pretty-prints the metrics.
func (m *Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}

var _ redact.SafeFormatter = &Metrics{}

// SafeFormat implements redact.SafeFormatter.
func (m *Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	if m.Medium.Loaded {
		w.Printf("medium: %s %s %s", redact.Safe(m.Medium.PCL), m.Medium.Format, m.Medium.Type)
		if m.Medium.Corrupt {
			w.SafeString(" (corrupt)")
		}
		w.Printf(" at block %s of %s, %d filemarks\n", m.Medium.Position, m.Medium.Blocks,
			redact.Safe(m.Medium.Filemarks))
		w.Printf("capacity: %s used, %s remaining of %s\n",
			redact.Safe(humanize.IBytes(m.Medium.Frontier)),
			redact.Safe(humanize.IBytes(m.Medium.RemainingCapacity)),
			redact.Safe(humanize.IBytes(m.Medium.MaxCapacity)))
	} else {
		w.SafeString("medium: not loaded\n")
	}
	w.Printf("loads: %d\n", redact.Safe(m.Loads))
	w.Printf("write: %s blocks, %s filemarks, %s logical, %s physical (ratio %.2f), %d early warnings, %d refused, %d flushes\n",
		redact.Safe(humanize.Comma(m.Write.Blocks)),
		redact.Safe(humanize.Comma(m.Write.Filemarks)),
		redact.Safe(humanize.IBytes(m.Write.LogicalBytes)),
		redact.Safe(humanize.IBytes(m.Write.PhysicalBytes)),
		redact.Safe(m.CompressionRatio()),
		redact.Safe(m.Write.EarlyWarnings),
		redact.Safe(m.Write.EndOfMedium),
		redact.Safe(m.Write.Flushes))
	w.Printf("read: %s blocks, %s, %d incorrect length, %d filemarks\n",
		redact.Safe(humanize.Comma(m.Read.Blocks)),
		redact.Safe(humanize.IBytes(m.Read.Bytes)),
		redact.Safe(m.Read.IncorrectLength),
		redact.Safe(m.Read.Filemarks))
	w.Printf("truncate: %d times, %d blocks\n", redact.Safe(m.Truncate.Count), redact.Safe(m.Truncate.Blocks))
	w.Printf("errors: %d checksum, %d decompression, %d corruption, %d io\n",
		redact.Safe(m.Errors.Checksum), redact.Safe(m.Errors.Decompression),
		redact.Safe(m.Errors.Corruption), redact.Safe(m.Errors.IO))
}
