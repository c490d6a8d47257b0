// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vtape/internal/compression"
)

// MediumInfo contains the info for a medium load or unload event.
type MediumInfo struct {
	PCL    string
	Format Format
	Type   MediumType
	// Blocks is the number of blocks on the medium, filemarks included.
	Blocks BlockNum
	// Filemarks is the number of filemarks on the medium.
	Filemarks int
	// LoadCount is the number of times the medium has been loaded,
	// including this load.
	LoadCount uint64
	Err       error
}

func (i MediumInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i MediumInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("medium %s: error: %s", redact.Safe(i.PCL), i.Err)
		return
	}
	w.Printf("medium %s (%s, %s): %s blocks, %d filemarks, load %d",
		redact.Safe(i.PCL), i.Format, i.Type, i.Blocks,
		redact.Safe(i.Filemarks), redact.Safe(i.LoadCount))
}

// MediumCreateInfo contains the info for a medium creation event.
type MediumCreateInfo struct {
	PCL      string
	Format   Format
	Type     MediumType
	Capacity uint64
	Err      error
}

func (i MediumCreateInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i MediumCreateInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("medium %s create error: %s", redact.Safe(i.PCL), i.Err)
		return
	}
	w.Printf("medium %s created (%s, %s, capacity %d)",
		redact.Safe(i.PCL), i.Format, i.Type, redact.Safe(i.Capacity))
}

// TruncateInfo contains the info for an overwrite truncation or a format.
type TruncateInfo struct {
	PCL string
	// From is the first block discarded.
	From BlockNum
	// Blocks and Filemarks count what was discarded. Blocks includes the
	// filemarks.
	Blocks    int
	Filemarks int
}

func (i TruncateInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i TruncateInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("medium %s truncated from block %s: %d blocks, %d filemarks discarded",
		redact.Safe(i.PCL), i.From, redact.Safe(i.Blocks), redact.Safe(i.Filemarks))
}

// CapacityInfo contains the info for an early-warning event.
type CapacityInfo struct {
	PCL string
	// Offset is the physical offset the write landed at.
	Offset      uint64
	MaxCapacity uint64
	Remaining   uint64
}

func (i CapacityInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i CapacityInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("medium %s early warning at offset %d of %d (%d remaining)",
		redact.Safe(i.PCL), redact.Safe(i.Offset), redact.Safe(i.MaxCapacity), redact.Safe(i.Remaining))
}

// CorruptionInfo contains the info for a corruption event. Once a corruption
// is reported the session refuses block operations until the medium is
// unloaded and loaded again.
type CorruptionInfo struct {
	PCL string
	// Block is the cursor position when the corruption surfaced.
	Block BlockNum
	Err   error
}

func (i CorruptionInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i CorruptionInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("medium %s corrupt at block %s: %s", redact.Safe(i.PCL), i.Block, i.Err)
}

// BlockReadErrorInfo contains the info for a block whose stored payload could
// not be decoded. The medium stays usable; the cursor rests on the block.
type BlockReadErrorInfo struct {
	PCL         string
	Block       BlockNum
	Compression compression.Algorithm
	// Cause classifies a decompression failure: one of
	// compression.ErrTruncated, ErrOverrun, ErrCorruptInput and
	// ErrMissingTerminator. It is nil for failures of another kind.
	Cause error
	Err   error
}

func (i BlockReadErrorInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i BlockReadErrorInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Cause != nil {
		w.Printf("medium %s block %s (%s) failed to decompress: %s: %s",
			redact.Safe(i.PCL), i.Block, i.Compression, redact.Safe(i.Cause.Error()), i.Err)
		return
	}
	w.Printf("medium %s block %s (%s) unreadable: %s", redact.Safe(i.PCL), i.Block, i.Compression, i.Err)
}

// EventListener contains a set of functions that will be invoked when various
// significant session events occur. Note that the functions should not run
// for an excessive amount of time as they are invoked synchronously by the
// session and may block the operation that triggered them.
type EventListener struct {
	// MediumCreated is invoked after a medium has been created.
	MediumCreated func(MediumCreateInfo)

	// MediumLoaded is invoked after a medium has been loaded, or after a load
	// failed.
	MediumLoaded func(MediumInfo)

	// MediumUnloaded is invoked after a medium has been unloaded.
	MediumUnloaded func(MediumInfo)

	// Truncated is invoked after blocks were discarded by an overwrite or a
	// format.
	Truncated func(TruncateInfo)

	// EarlyWarning is invoked when a write lands in the medium's early-warning
	// zone.
	EarlyWarning func(CapacityInfo)

	// CorruptionDetected is invoked when the session first observes a corrupt
	// or inconsistent medium, or a storage failure.
	CorruptionDetected func(CorruptionInfo)

	// BlockReadError is invoked when a read finds a block it cannot decode:
	// a decompression failure, a content checksum mismatch or a missing
	// encryption key.
	BlockReadError func(BlockReadErrorInfo)
}

// EnsureDefaults ensures that the event listener has all of its callbacks
// set to a non-nil function.
func (l *EventListener) EnsureDefaults(logger Logger) {
	if l.MediumCreated == nil {
		l.MediumCreated = func(info MediumCreateInfo) {}
	}
	if l.MediumLoaded == nil {
		l.MediumLoaded = func(info MediumInfo) {}
	}
	if l.MediumUnloaded == nil {
		l.MediumUnloaded = func(info MediumInfo) {}
	}
	if l.Truncated == nil {
		l.Truncated = func(info TruncateInfo) {}
	}
	if l.EarlyWarning == nil {
		l.EarlyWarning = func(info CapacityInfo) {}
	}
	if l.CorruptionDetected == nil {
		if logger != nil {
			l.CorruptionDetected = func(info CorruptionInfo) {
				logger.Errorf("%s", info)
			}
		} else {
			l.CorruptionDetected = func(info CorruptionInfo) {}
		}
	}
	if l.BlockReadError == nil {
		if logger != nil {
			l.BlockReadError = func(info BlockReadErrorInfo) {
				logger.Errorf("%s", info)
			}
		} else {
			l.BlockReadError = func(info BlockReadErrorInfo) {}
		}
	}
}

// MakeLoggingEventListener creates an EventListener that logs all events to
// the specified logger.
func MakeLoggingEventListener(logger Logger) EventListener {
	if logger == nil {
		logger = DefaultLogger
	}

	return EventListener{
		MediumCreated: func(info MediumCreateInfo) {
			logger.Infof("%s", info)
		},
		MediumLoaded: func(info MediumInfo) {
			logger.Infof("loaded %s", info)
		},
		MediumUnloaded: func(info MediumInfo) {
			logger.Infof("unloaded %s", info)
		},
		Truncated: func(info TruncateInfo) {
			logger.Infof("%s", info)
		},
		EarlyWarning: func(info CapacityInfo) {
			logger.Infof("%s", info)
		},
		CorruptionDetected: func(info CorruptionInfo) {
			logger.Errorf("%s", info)
		},
		BlockReadError: func(info BlockReadErrorInfo) {
			logger.Errorf("%s", info)
		},
	}
}

// TeeEventListener wraps two EventListeners, forwarding all events to both.
func TeeEventListener(a, b EventListener) EventListener {
	a.EnsureDefaults(nil)
	b.EnsureDefaults(nil)
	return EventListener{
		MediumCreated: func(info MediumCreateInfo) {
			a.MediumCreated(info)
			b.MediumCreated(info)
		},
		MediumLoaded: func(info MediumInfo) {
			a.MediumLoaded(info)
			b.MediumLoaded(info)
		},
		MediumUnloaded: func(info MediumInfo) {
			a.MediumUnloaded(info)
			b.MediumUnloaded(info)
		},
		Truncated: func(info TruncateInfo) {
			a.Truncated(info)
			b.Truncated(info)
		},
		EarlyWarning: func(info CapacityInfo) {
			a.EarlyWarning(info)
			b.EarlyWarning(info)
		},
		CorruptionDetected: func(info CorruptionInfo) {
			a.CorruptionDetected(info)
			b.CorruptionDetected(info)
		},
		BlockReadError: func(info BlockReadErrorInfo) {
			a.BlockReadError(info)
			b.BlockReadError(info)
		},
	}
}
