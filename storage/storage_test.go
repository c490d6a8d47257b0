// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package storage

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/mam"
	"github.com/cockroachdb/vtape/record"
	"github.com/cockroachdb/vtape/vfs"
	"github.com/cockroachdb/vtape/vfs/errorfs"
	"github.com/stretchr/testify/require"
)

var formats = []Format{FormatIndexed, FormatLegacy}

func testMAM(typ mam.MediumType) *mam.MAM {
	return &mam.MAM{
		Type:              typ,
		MaxCapacity:       1 << 20,
		RemainingCapacity: 1 << 20,
		Barcode:           "TEST01L8",
	}
}

func dataBlock(payload []byte) (record.Block, []byte) {
	return record.Block{
		Kind:         record.KindData,
		LogicalSize:  uint32(len(payload)),
		PhysicalSize: uint32(len(payload)),
	}, payload
}

func filemark() record.Block {
	return record.Block{Kind: record.KindFilemark}
}

func payload(i int) []byte {
	return bytes.Repeat([]byte{byte('a' + i)}, 100+i)
}

func mustCreateOpen(t *testing.T, fs vfs.FS, format Format, typ mam.MediumType) Backend {
	t.Helper()
	require.NoError(t, Create(fs, "T1", format, testMAM(typ)))
	b, err := Open(fs, "T1")
	require.NoError(t, err)
	require.Equal(t, format, b.Format())
	return b
}

// writeTape appends blocks described by layout: 'D' for a data block and 'F'
// for a filemark.
func writeTape(t *testing.T, b Backend, layout string) {
	t.Helper()
	for i, c := range layout {
		var err error
		switch c {
		case 'D':
			_, err = b.Append(dataBlock(payload(i)))
		case 'F':
			_, err = b.Append(filemark(), nil)
		default:
			t.Fatalf("bad layout %q", layout)
		}
		require.NoError(t, err)
	}
}

func checkTape(t *testing.T, b Backend, layout string) {
	t.Helper()
	eod := b.EndOfData()
	require.Equal(t, record.KindEndOfData, eod.Kind)
	require.Equal(t, base.BlockNum(len(layout)), eod.Num)
	var marks []base.BlockNum
	for i, c := range layout {
		rec, err := b.ReadRecord(base.BlockNum(i))
		require.NoError(t, err)
		require.Equal(t, base.BlockNum(i), rec.Num)
		switch c {
		case 'D':
			require.Equal(t, record.KindData, rec.Kind)
			buf := make([]byte, rec.PhysicalSize)
			require.NoError(t, b.ReadPayload(&rec, buf))
			require.Equal(t, payload(i), buf)
		case 'F':
			require.Equal(t, record.KindFilemark, rec.Kind)
			marks = append(marks, base.BlockNum(i))
		}
	}
	require.Equal(t, marks, b.Filemarks().Marks())
	rec, err := b.ReadRecord(eod.Num)
	require.NoError(t, err)
	require.Equal(t, eod, rec)
	_, err = b.ReadRecord(eod.Num + 1)
	require.True(t, errors.Is(err, base.ErrEndOfData))
}

func TestCreateOpen(t *testing.T) {
	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			fs := vfs.NewMem()
			b := mustCreateOpen(t, fs, format, mam.Data)
			checkTape(t, b, "")
			m := b.MAM()
			require.Equal(t, "TEST01L8", m.Barcode)
			require.NoError(t, b.Close())

			err := Create(fs, "T1", format, testMAM(mam.Data))
			require.True(t, errors.Is(err, base.ErrExist), "%v", err)

			_, err = Open(fs, "MISSING")
			require.True(t, errors.Is(err, base.ErrMediumNotPresent), "%v", err)
		})
	}
}

func TestAppendTruncateReopen(t *testing.T) {
	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			fs := vfs.NewMem()
			b := mustCreateOpen(t, fs, format, mam.Data)
			writeTape(t, b, "FDFDDFF")
			checkTape(t, b, "FDFDDFF")
			require.NoError(t, b.Sync())
			require.NoError(t, b.Close())

			b, err := Open(fs, "T1")
			require.NoError(t, err)
			checkTape(t, b, "FDFDDFF")

			// Truncating at the end of data is a no-op, past it an error.
			require.NoError(t, b.TruncateFrom(7))
			err = b.TruncateFrom(8)
			require.True(t, errors.Is(err, base.ErrEndOfData))
			residual, ok := base.Residual(err)
			require.True(t, ok)
			require.Equal(t, int64(1), residual)
			_, err = b.ReadRecord(10)
			require.True(t, errors.Is(err, base.ErrEndOfData))
			residual, _ = base.Residual(err)
			require.Equal(t, int64(3), residual)
			require.Equal(t, base.BlockNum(7), b.EndOfData().Num)

			before, err := b.ReadRecord(3)
			require.NoError(t, err)
			require.NoError(t, b.TruncateFrom(3))
			checkTape(t, b, "FDF")
			require.Equal(t, before.DataOffset, b.EndOfData().DataOffset)

			writeTape(t, b, "FDFD")
			require.NoError(t, b.Close())

			b, err = Open(fs, "T1")
			require.NoError(t, err)
			// writeTape fills a block's payload based on its position in the
			// layout, so compare against the blocks actually written.
			require.Equal(t, []base.BlockNum{0, 2, 3, 5}, b.Filemarks().Marks())
			require.Equal(t, base.BlockNum(7), b.EndOfData().Num)

			require.NoError(t, b.TruncateFrom(0))
			checkTape(t, b, "")
			require.NoError(t, b.Close())
			b, err = Open(fs, "T1")
			require.NoError(t, err)
			checkTape(t, b, "")
			require.NoError(t, b.Close())
		})
	}
}

func TestWriteMAM(t *testing.T) {
	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			fs := vfs.NewMem()
			b := mustCreateOpen(t, fs, format, mam.Data)
			writeTape(t, b, "DF")
			m := b.MAM()
			m.LoadCount = 9
			m.Type = mam.WORM
			require.NoError(t, b.WriteMAM(&m))
			require.NoError(t, b.Close())

			b, err := Open(fs, "T1")
			require.NoError(t, err)
			got := b.MAM()
			require.Equal(t, uint64(9), got.LoadCount)
			require.Equal(t, mam.WORM, got.Type)
			checkTape(t, b, "DF")

			got.MaxCapacity *= 2
			err = b.WriteMAM(&got)
			if format == FormatLegacy {
				require.True(t, errors.Is(err, base.ErrNotSupported), "%v", err)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, b.Close())
		})
	}
}

func TestNullMedium(t *testing.T) {
	fs := vfs.NewMem()
	err := Create(fs, "T1", FormatLegacy, testMAM(mam.Null))
	require.True(t, errors.Is(err, base.ErrNotSupported))

	b := mustCreateOpen(t, fs, FormatIndexed, mam.Null)
	for i := 0; i < 3; i++ {
		_, err := b.Append(record.Block{Kind: record.KindData, LogicalSize: 4096, PhysicalSize: 4096}, nil)
		require.NoError(t, err)
	}
	require.Equal(t, uint64(3*4096), b.EndOfData().DataOffset)
	rec, err := b.ReadRecord(1)
	require.NoError(t, err)
	buf := bytes.Repeat([]byte{0xff}, 4096)
	require.NoError(t, b.ReadPayload(&rec, buf))
	require.Equal(t, make([]byte, 4096), buf)
	require.NoError(t, b.Close())

	// The data file is never written, and open tolerates that.
	fi, err := fs.Stat("T1/data")
	require.NoError(t, err)
	require.Zero(t, fi.Size())
	b, err = Open(fs, "T1")
	require.NoError(t, err)
	require.Equal(t, base.BlockNum(3), b.EndOfData().Num)
	require.NoError(t, b.Close())
}

func TestOpenDetectsDamage(t *testing.T) {
	testCases := []struct {
		name   string
		damage func(t *testing.T, fs *vfs.MemFS)
	}{
		{"index-partial-record", func(t *testing.T, fs *vfs.MemFS) {
			truncateFile(t, fs, "T1/indx", 3*record.BlockRecordSize+10)
		}},
		{"data-truncated-index-not", func(t *testing.T, fs *vfs.MemFS) {
			rewriteFile(t, fs, "T1/data", func(b []byte) []byte { return b[:50] })
		}},
		{"index-truncated-filemarks-not", func(t *testing.T, fs *vfs.MemFS) {
			// Cut the index and data after block 1; the filemark at block 2
			// remains in the metadata file.
			rewriteFile(t, fs, "T1/data", func(b []byte) []byte { return b[:201] })
			truncateFile(t, fs, "T1/indx", 2*record.BlockRecordSize)
		}},
		{"index-record-flipped", func(t *testing.T, fs *vfs.MemFS) {
			rewriteFile(t, fs, "T1/indx", func(b []byte) []byte { b[2*record.BlockRecordSize+3] = 0x80; return b })
		}},
		{"filemark-names-data-block", func(t *testing.T, fs *vfs.MemFS) {
			rewriteFile(t, fs, "T1/meta", func(b []byte) []byte {
				m, _, err := mam.DecodeMeta(b)
				require.NoError(t, err)
				x, err := mam.MakeFilemarkIndex(1)
				require.NoError(t, err)
				out, err := mam.EncodeMeta(&m, &x)
				require.NoError(t, err)
				return out
			})
		}},
		{"missing-index", func(t *testing.T, fs *vfs.MemFS) {
			require.NoError(t, fs.Remove("T1/indx"))
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := vfs.NewMem()
			b := mustCreateOpen(t, fs, FormatIndexed, mam.Data)
			// Blocks 0 and 1 hold 100 and 101 bytes.
			writeTape(t, b, "DDFD")
			require.NoError(t, b.Close())
			tc.damage(t, fs)
			_, err := Open(fs, "T1")
			require.True(t, errors.Is(err, base.ErrCorruption), "%v", err)
		})
	}
}

func TestLegacyOpenDetectsDamage(t *testing.T) {
	const dataHeader = record.LegacyHeaderSize + mam.Size + record.LegacyHeaderSize
	testCases := []struct {
		name   string
		damage func(b []byte) []byte
	}{
		{"trailing-bytes", func(b []byte) []byte { return append(b, 1, 2, 3) }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }},
		{"bot-version", func(b []byte) []byte { b[0] = 0; return b }},
		{"broken-link", func(b []byte) []byte { b[record.LegacyHeaderSize+mam.Size+24]++; return b }},
		{"payload-flags", func(b []byte) []byte { b[dataHeader+100+3] = 0x40; return b }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := vfs.NewMem()
			b := mustCreateOpen(t, fs, FormatLegacy, mam.Data)
			writeTape(t, b, "DFD")
			require.NoError(t, b.Close())
			rewriteFile(t, fs, "T1", tc.damage)
			_, err := Open(fs, "T1")
			require.True(t, errors.Is(err, base.ErrCorruption), "%v", err)
		})
	}
}

func TestAppendFailureRollsBack(t *testing.T) {
	for _, format := range formats {
		for _, pattern := range []string{"data", "indx", "meta", "T1"} {
			if (format == FormatLegacy) != (pattern == "T1") {
				continue
			}
			t.Run(fmt.Sprintf("%s/%s", format, pattern), func(t *testing.T) {
				mem := vfs.NewMem()
				// Only the first write after the toggle is switched on fails.
				toggle := &errorfs.Toggle{Injector: errorfs.PathMatch(pattern,
					errorfs.OnOps(errorfs.OnIndex(0, errorfs.Always()), errorfs.OpFileWriteAt))}
				fs := errorfs.Wrap(mem, toggle)
				b := mustCreateOpen(t, fs, format, mam.Data)
				writeTape(t, b, "DF")

				toggle.On()
				_, err := b.Append(dataBlock(payload(2)))
				if pattern == "meta" {
					// Data blocks never touch the metadata file.
					require.NoError(t, err)
					_, err = b.Append(filemark(), nil)
					require.True(t, errors.Is(err, errorfs.ErrInjected))
					require.True(t, errors.Is(err, base.ErrIO))
					require.False(t, errors.Is(err, base.ErrInconsistent))
					toggle.Off()
					checkTape(t, b, "DFD")
					require.NoError(t, b.Close())
					b, err = Open(fs, "T1")
					require.NoError(t, err)
					checkTape(t, b, "DFD")
					return
				}
				require.True(t, errors.Is(err, errorfs.ErrInjected))
				require.True(t, errors.Is(err, base.ErrIO))
				toggle.Off()

				// The failed append left no trace.
				checkTape(t, b, "DF")
				require.NoError(t, b.Close())
				b, err = Open(fs, "T1")
				require.NoError(t, err)
				checkTape(t, b, "DF")
				writeTape(t, b, "DFD")
				require.NoError(t, b.Close())
			})
		}
	}
}

func TestAppendRollbackFailureIsInconsistent(t *testing.T) {
	mem := vfs.NewMem()
	toggle := &errorfs.Toggle{Injector: errorfs.PathMatch("indx",
		errorfs.OnOps(errorfs.Always(), errorfs.OpFileWriteAt, errorfs.OpFileTruncate))}
	b := mustCreateOpen(t, errorfs.Wrap(mem, toggle), FormatIndexed, mam.Data)
	writeTape(t, b, "D")
	toggle.On()
	_, err := b.Append(dataBlock(payload(1)))
	require.True(t, errors.Is(err, base.ErrIO))
	require.True(t, errors.Is(err, base.ErrInconsistent))
}

func TestTruncateFailureIsInconsistent(t *testing.T) {
	mem := vfs.NewMem()
	toggle := &errorfs.Toggle{Injector: errorfs.PathMatch("indx", errorfs.OnOps(errorfs.Always(), errorfs.OpFileTruncate))}
	fs := errorfs.Wrap(mem, toggle)
	b := mustCreateOpen(t, fs, FormatIndexed, mam.Data)
	writeTape(t, b, "DDFD")
	toggle.On()
	err := b.TruncateFrom(1)
	require.True(t, errors.Is(err, base.ErrIO))
	require.True(t, errors.Is(err, base.ErrInconsistent))
	require.NoError(t, b.Close())

	// The data file was truncated but the index was not; open notices.
	toggle.Off()
	_, err = Open(fs, "T1")
	require.True(t, errors.Is(err, base.ErrCorruption), "%v", err)
}

func TestCrashRecovery(t *testing.T) {
	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			fs := vfs.NewCrashableMem()
			b := mustCreateOpen(t, fs, format, mam.Data)
			writeTape(t, b, "DFD")
			require.NoError(t, b.Sync())

			crashed := fs.CrashClone(vfs.CrashCloneCfg{})
			writeTape(t, b, "DD")
			require.NoError(t, b.Close())

			b, err := Open(crashed, "T1")
			require.NoError(t, err)
			checkTape(t, b, "DFD")
			require.NoError(t, b.Close())
		})
	}
}

func TestFilemarkCrashBeforeIndexRecord(t *testing.T) {
	mem := vfs.NewCrashableMem()
	var crashed *vfs.MemFS
	armed := false
	// The first index write after arming snapshots the file system and then
	// fails, as if the machine had stopped just before the write.
	fs := errorfs.Wrap(mem, errorfs.PathMatch("indx", errorfs.InjectorFunc(func(op errorfs.Op, _ string) error {
		if !armed || op != errorfs.OpFileWriteAt {
			return nil
		}
		armed = false
		crashed = mem.CrashClone(vfs.CrashCloneCfg{UnsyncedDataPercent: 100, RNG: rand.New(rand.NewPCG(1, 1))})
		return errorfs.ErrInjected
	})))
	b := mustCreateOpen(t, fs, FormatIndexed, mam.Data)
	writeTape(t, b, "D")
	armed = true
	_, err := b.Append(filemark(), nil)
	require.True(t, errors.Is(err, errorfs.ErrInjected))
	require.False(t, errors.Is(err, base.ErrInconsistent))
	require.NotNil(t, crashed)

	// The filemark index names block 1 but the index file ends before it.
	_, err = Open(crashed, "T1")
	require.True(t, errors.Is(err, base.ErrCorruption), "%v", err)

	// Without the crash the failed append left no trace.
	checkTape(t, b, "D")
	require.NoError(t, b.Close())
	b, err = Open(fs, "T1")
	require.NoError(t, err)
	checkTape(t, b, "D")
	writeTape(t, b, "DF")
	require.Equal(t, []base.BlockNum{2}, b.Filemarks().Marks())
	require.NoError(t, b.Close())
}

func TestCreateFailureLeavesNothing(t *testing.T) {
	for _, tc := range []struct {
		format Format
		inj    errorfs.Injector
	}{
		{FormatIndexed, errorfs.PathMatch("data", errorfs.OnOps(errorfs.Always(), errorfs.OpCreate))},
		{FormatLegacy, errorfs.OnOps(errorfs.Always(), errorfs.OpRename)},
	} {
		t.Run(tc.format.String(), func(t *testing.T) {
			mem := vfs.NewMem()
			err := Create(errorfs.Wrap(mem, tc.inj), "T1", tc.format, testMAM(mam.Data))
			require.True(t, errors.Is(err, base.ErrIO), "%v", err)
			require.True(t, errors.Is(err, errorfs.ErrInjected))
			for _, name := range []string{"T1", "T1" + tmpSuffix} {
				_, err := mem.Stat(name)
				require.True(t, oserror.IsNotExist(err), "%s: %v", name, err)
			}

			b := mustCreateOpen(t, mem, tc.format, mam.Data)
			writeTape(t, b, "DF")
			checkTape(t, b, "DF")
			require.NoError(t, b.Close())
		})
	}
}

func TestFormatString(t *testing.T) {
	for _, f := range formats {
		got, err := ParseFormat(f.String())
		require.NoError(t, err)
		require.Equal(t, f, got)
	}
	_, err := ParseFormat("cassette")
	require.Error(t, err)

	for ft, name := range map[FileType]string{FileTypeData: "data", FileTypeIndex: "indx", FileTypeMeta: "meta"} {
		require.Equal(t, name, MakeFilename(ft))
		got, ok := ParseFilename(vfs.NewMem(), "T1/"+name)
		require.True(t, ok)
		require.Equal(t, ft, got)
	}
	_, ok := ParseFilename(vfs.NewMem(), "T1/OPTIONS")
	require.False(t, ok)
}

func truncateFile(t *testing.T, fs vfs.FS, name string, size int64) {
	t.Helper()
	f, err := fs.OpenReadWrite(name)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
}

func rewriteFile(t *testing.T, fs vfs.FS, name string, fn func([]byte) []byte) {
	t.Helper()
	f, err := fs.Open(name)
	require.NoError(t, err)
	size, err := vfs.Size(f)
	require.NoError(t, err)
	buf := make([]byte, size)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	buf = fn(buf)

	f, err = fs.Create(name)
	require.NoError(t, err)
	_, err = f.WriteAt(buf, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
