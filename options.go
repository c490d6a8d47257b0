// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/internal/compression"
	"github.com/cockroachdb/vtape/storage"
	"github.com/cockroachdb/vtape/vfs"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultManufacturer = "vtape"

// Options holds the optional parameters for a session. The zero value of every
// field is usable: the public fields are filled in by EnsureDefaults.
type Options struct {
	// FS provides the interface for persistent file storage.
	//
	// The default value uses the underlying operating system's file system.
	FS vfs.FS

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// EventListener provides hooks to listening to significant session
	// events such as loads, unloads and truncations.
	EventListener *EventListener

	// Compression is the compression applied to blocks written during a
	// session. Blocks that do not compress are stored verbatim. Blocks already
	// on a medium are read back with whatever algorithm they were written with.
	//
	// The default value is NoCompression.
	Compression Compression

	// DisableChecksums turns off the CRC32C content checksum recorded with
	// each block written. Blocks written with a checksum are always verified
	// when read.
	DisableChecksums bool

	// Format is the on-disk format of media created with these options.
	//
	// The default value is FormatIndexed.
	Format Format

	// Manufacturer is recorded in the MAM of newly created media.
	//
	// The default value is "vtape".
	Manufacturer string

	// SyncLatency, if set, observes the duration in nanoseconds of every sync
	// of a medium, whether from a flush or an unload.
	SyncLatency prometheus.Histogram

	// private options are only used by internal tests.
	private struct {
		// timeNow returns the time recorded as the manufacture date of newly
		// created media.
		timeNow func() time.Time
	}
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified.
func (o *Options) EnsureDefaults() {
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger
	}
	if o.EventListener == nil {
		o.EventListener = &EventListener{}
	}
	o.EventListener.EnsureDefaults(o.Logger)
	if o.Manufacturer == "" {
		o.Manufacturer = defaultManufacturer
	}
	if o.private.timeNow == nil {
		o.private.timeNow = time.Now
	}
}

// Clone creates a shallow-copy of the supplied options.
func (o *Options) Clone() *Options {
	if o == nil {
		return &Options{}
	}
	n := *o
	if o.EventListener != nil {
		l := *o.EventListener
		n.EventListener = &l
	}
	return &n
}

// Validate verifies that the options are mutually consistent.
func (o *Options) Validate() error {
	var buf strings.Builder
	if !o.Compression.Algorithm.Valid() {
		fmt.Fprintf(&buf, "unknown compression algorithm %d\n", o.Compression.Algorithm)
	}
	switch o.Format {
	case FormatIndexed, FormatLegacy:
	default:
		fmt.Fprintf(&buf, "unknown medium format %d\n", o.Format)
	}
	if len(o.Manufacturer) > 32 {
		fmt.Fprintf(&buf, "manufacturer %q longer than 32 bytes\n", o.Manufacturer)
	}
	if buf.Len() == 0 {
		return nil
	}
	return errors.New(buf.String())
}

func (o *Options) String() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[Version]\n")
	fmt.Fprintf(&buf, "  vtape_version=0.1\n")
	fmt.Fprintf(&buf, "\n")
	fmt.Fprintf(&buf, "[Options]\n")
	fmt.Fprintf(&buf, "  compression=%s\n", o.Compression)
	fmt.Fprintf(&buf, "  disable_checksums=%t\n", o.DisableChecksums)
	fmt.Fprintf(&buf, "  format=%s\n", o.Format)
	fmt.Fprintf(&buf, "  manufacturer=%s\n", o.Manufacturer)
	return buf.String()
}

type parseOptionsFuncs struct {
	visitNewSection func(section string) error
	visitKeyValue   func(section, key, value string) error
}

// parseOptions takes options serialized by Options.String() and parses them
// into keys and values. It calls fns.visitNewSection for the beginning of each
// new section and fns.visitKeyValue for each key-value pair.
func parseOptions(s string, fns parseOptionsFuncs) error {
	var section string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || line[0] == ';' || line[0] == '#' {
			// Skip blank lines and comments.
			continue
		}
		n := len(line)
		if line[0] == '[' && line[n-1] == ']' {
			section = line[1 : n-1]
			if fns.visitNewSection != nil {
				if err := fns.visitNewSection(section); err != nil {
					return err
				}
			}
			continue
		}

		pos := strings.Index(line, "=")
		if pos < 0 {
			const maxLen = 50
			if len(line) > maxLen {
				line = line[:maxLen-3] + "..."
			}
			return base.CorruptionErrorf("invalid key=value syntax: %q", errors.Safe(line))
		}

		key := strings.TrimSpace(line[:pos])
		value := strings.TrimSpace(line[pos+1:])
		if fns.visitKeyValue != nil {
			if err := fns.visitKeyValue(section, key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParseHooks contains callbacks consulted while parsing options.
type ParseHooks struct {
	SkipUnknown func(name, value string) bool
}

// Parse parses the options from the specified string.
func (o *Options) Parse(s string, hooks *ParseHooks) error {
	skip := func(section, key, value string) bool {
		return hooks != nil && hooks.SkipUnknown != nil && hooks.SkipUnknown(section+"."+key, value)
	}
	visitKeyValue := func(section, key, value string) error {
		switch section {
		case "Version":
			switch key {
			case "vtape_version":
			default:
				if skip(section, key, value) {
					return nil
				}
				return errors.Errorf("vtape: unknown option: %s.%s",
					errors.Safe(section), errors.Safe(key))
			}
			return nil

		case "Options":
			var err error
			switch key {
			case "compression":
				o.Compression, err = compression.ParseSetting(value)
			case "disable_checksums":
				o.DisableChecksums, err = strconv.ParseBool(value)
			case "format":
				o.Format, err = storage.ParseFormat(value)
			case "manufacturer":
				o.Manufacturer = value
			default:
				if skip(section, key, value) {
					return nil
				}
				return errors.Errorf("vtape: unknown option: %s.%s",
					errors.Safe(section), errors.Safe(key))
			}
			return err
		}
		if skip(section, key, value) {
			return nil
		}
		return errors.Errorf("vtape: unknown section %q or key %q", errors.Safe(section), errors.Safe(key))
	}
	return parseOptions(s, parseOptionsFuncs{
		visitKeyValue: visitKeyValue,
	})
}
