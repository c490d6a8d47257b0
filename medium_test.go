// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vtape

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/internal/base"
	"github.com/cockroachdb/vtape/storage"
	"github.com/cockroachdb/vtape/vfs"
	"github.com/cockroachdb/vtape/vfs/errorfs"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func testOptions(fs vfs.FS) *Options {
	return &Options{FS: fs, Logger: base.NoopLogger{}}
}

func mustCreateAndLoad(t *testing.T, s *Session, pcl string, params CreateParams) {
	t.Helper()
	require.NoError(t, s.Create(pcl, params))
	require.NoError(t, s.Load(pcl))
}

func mustWrite(t *testing.T, s *Session, data []byte) WriteResult {
	t.Helper()
	res, err := s.WriteBlock(data, LBPNone)
	require.NoError(t, err)
	return res
}

func mustRead(t *testing.T, s *Session, size int) []byte {
	t.Helper()
	res, err := s.ReadBlock(make([]byte, size), true, LBPNone)
	require.NoError(t, err)
	return res.Data
}

func forEachFormat(t *testing.T, fn func(t *testing.T, format Format)) {
	for _, f := range []Format{FormatIndexed, FormatLegacy} {
		t.Run(f.String(), func(t *testing.T) { fn(t, f) })
	}
}

// TestFilemarkScenario writes 64 KiB, a filemark and another 64 KiB, then
// confirms that spacing one filemark from the beginning lands on the second
// write's block.
func TestFilemarkScenario(t *testing.T) {
	defer leaktest.AfterTest(t)()
	forEachFormat(t, func(t *testing.T, format Format) {
		opts := testOptions(vfs.NewMem())
		opts.Format = format
		s := NewSession("tapes", opts)
		defer s.Close()
		mustCreateAndLoad(t, s, "TAPE01", CreateParams{Type: MediumData, Capacity: 10 << 20})

		first, second := testPayload(1, 64<<10), testPayload(2, 64<<10)
		mustWrite(t, s, first)
		require.NoError(t, s.WriteFilemarks(1))
		mustWrite(t, s, second)
		require.Equal(t, []BlockNum{1}, s.Filemarks())

		require.NoError(t, s.Rewind())
		require.NoError(t, s.SpaceFilemarks(1))
		require.Equal(t, BlockNum(2), s.CurrentBlock())
		require.Equal(t, second, mustRead(t, s, len(second)))

		require.NoError(t, s.Rewind())
		require.Equal(t, first, mustRead(t, s, len(first)))
		_, err := s.ReadBlock(make([]byte, 10), false, LBPNone)
		require.True(t, errors.Is(err, ErrFilemark))
		r, ok := Residual(err)
		require.True(t, ok)
		require.Equal(t, int64(10), r)
		require.Equal(t, BlockNum(2), s.CurrentBlock())
	})
}

func TestOverwriteSurvivesReload(t *testing.T) {
	forEachFormat(t, func(t *testing.T, format Format) {
		mem := vfs.NewMem()
		opts := testOptions(mem)
		opts.Format = format
		s := NewSession("tapes", opts)
		defer s.Close()
		mustCreateAndLoad(t, s, "TAPE02", CreateParams{Type: MediumData, Capacity: 1 << 20})

		for i := 0; i < 3; i++ {
			mustWrite(t, s, testPayload(i, 100))
			require.NoError(t, s.WriteFilemarks(1))
		}
		eod, _ := s.EndOfData()
		require.Equal(t, BlockNum(6), eod)
		require.Equal(t, []BlockNum{1, 3, 5}, s.Filemarks())

		require.NoError(t, s.PositionToBlock(2))
		res := mustWrite(t, s, testPayload(9, 50))
		require.Equal(t, BlockNum(2), res.Block)
		require.Equal(t, []BlockNum{1}, s.Filemarks())
		_, frontier := s.EndOfData()

		require.NoError(t, s.Unload())
		require.NoError(t, s.Load("TAPE02"))
		eod, reloaded := s.EndOfData()
		require.Equal(t, BlockNum(3), eod)
		require.Equal(t, frontier, reloaded)
		require.Equal(t, []BlockNum{1}, s.Filemarks())

		require.NoError(t, s.PositionToBlock(2))
		require.Equal(t, testPayload(9, 50), mustRead(t, s, 50))
		_, err := s.ReadBlock(make([]byte, 50), false, LBPNone)
		require.True(t, errors.Is(err, ErrEndOfData))
	})
}

// TestFrontierStable checks that repeated load cycles without writes leave
// the end of data and the remaining capacity where they were.
func TestFrontierStable(t *testing.T) {
	forEachFormat(t, func(t *testing.T, format Format) {
		opts := testOptions(vfs.NewMem())
		opts.Format = format
		s := NewSession("tapes", opts)
		defer s.Close()
		mustCreateAndLoad(t, s, "TAPE03", CreateParams{Type: MediumData, Capacity: 1 << 20})
		mustWrite(t, s, testPayload(1, 1000))
		require.NoError(t, s.WriteFilemarks(2))
		mustWrite(t, s, testPayload(2, 10))

		eod, frontier := s.EndOfData()
		m, err := s.MAM()
		require.NoError(t, err)
		remaining := m.RemainingCapacity
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Unload())
			require.NoError(t, s.Load("TAPE03"))
			gotEOD, gotFrontier := s.EndOfData()
			require.Equal(t, eod, gotEOD)
			require.Equal(t, frontier, gotFrontier)
			m, err := s.MAM()
			require.NoError(t, err)
			require.Equal(t, remaining, m.RemainingCapacity)
			require.Equal(t, uint64(i+2), m.LoadCount)
		}
	})
}

func TestRoundTrip(t *testing.T) {
	defer leaktest.AfterTest(t)()
	rng := rand.New(rand.NewPCG(1, 2))
	random := make([]byte, 20000)
	for i := range random {
		random[i] = byte(rng.Uint32())
	}
	payloads := [][]byte{
		{},
		{0x42},
		testPayload(3, 4096),
		random,
		bytes.Repeat([]byte("vtape"), 30000),
	}

	settings := []Compression{
		NoCompression, FastLZCompression, DeflateDefault, SnappyCompression, MinLZFastest, ZstdDefault,
	}
	for _, c := range settings {
		for _, lbp := range []LBPMethod{LBPNone, LBPRSCRC, LBPCRC32C} {
			t.Run(fmt.Sprintf("%s/%s", c, lbp), func(t *testing.T) {
				opts := testOptions(vfs.NewMem())
				opts.Compression = c
				s := NewSession("tapes", opts)
				defer s.Close()
				mustCreateAndLoad(t, s, "RT0001", CreateParams{Type: MediumData, Capacity: 1 << 30})

				for i, p := range payloads {
					res, err := s.WriteBlock(AppendLBP(append([]byte(nil), p...), lbp, p), lbp)
					require.NoError(t, err)
					require.Equal(t, BlockNum(i), res.Block)
					require.Equal(t, len(p), res.Written)
				}
				require.NoError(t, s.Rewind())
				for _, p := range payloads {
					res, err := s.ReadBlock(make([]byte, len(p)), false, lbp)
					require.NoError(t, err)
					require.False(t, res.IncorrectLength)
					require.Equal(t, int(lbp.TrailerSize())+len(p), len(res.Data))
					want := AppendLBP(append([]byte(nil), p...), lbp, p)
					require.True(t, bytes.Equal(want, res.Data), "%x != %x", want, res.Data)
				}
				m := s.Metrics()
				require.Equal(t, int64(len(payloads)), m.Write.Blocks)
				require.Equal(t, int64(len(payloads)), m.Read.Blocks)
			})
		}
	}
}

func TestRewriteMetadata(t *testing.T) {
	forEachFormat(t, func(t *testing.T, format Format) {
		mem := vfs.NewMem()
		opts := testOptions(mem)
		opts.Format = format
		s := NewSession("tapes", opts)
		defer s.Close()
		mustCreateAndLoad(t, s, "RWM001", CreateParams{Type: MediumData, Capacity: 1 << 20})
		mustWrite(t, s, testPayload(3, 700))

		onDisk := func() MAM {
			b, err := storage.Open(mem, mem.PathJoin("tapes", "RWM001"))
			require.NoError(t, err)
			defer b.Close()
			return b.MAM()
		}
		require.Zero(t, onDisk().LifetimeBytesWritten)
		require.NoError(t, s.RewriteMetadata())
		m := onDisk()
		require.Equal(t, uint64(700), m.LifetimeBytesWritten)
		require.Equal(t, uint64(1), m.LoadCount)

		require.NoError(t, s.Unload())
		require.True(t, errors.Is(s.RewriteMetadata(), ErrMediumNotPresent))
	})
}

func TestStoredByteFlip(t *testing.T) {
	for _, c := range []Compression{NoCompression, ZstdDefault} {
		t.Run(c.String(), func(t *testing.T) {
			mem := vfs.NewMem()
			opts := testOptions(mem)
			opts.Compression = c
			s := NewSession("tapes", opts)
			defer s.Close()
			mustCreateAndLoad(t, s, "FLIP01", CreateParams{Type: MediumData, Capacity: 1 << 20})
			res := mustWrite(t, s, testPayload(5, 8192))
			data, err := mem.UnsafeGetFileDataBuffer("tapes/FLIP01/data")
			require.NoError(t, err)
			require.Equal(t, int(res.PhysicalSize), len(data))
			data[len(data)/2] ^= 0x10

			require.NoError(t, s.Rewind())
			_, err = s.ReadBlock(make([]byte, 8192), false, LBPNone)
			require.Error(t, err)
			if c == NoCompression {
				require.True(t, errors.Is(err, ErrChecksumMismatch), "%+v", err)
			} else {
				require.True(t, errors.IsAny(err, ErrChecksumMismatch, ErrDecompression), "%+v", err)
			}
			// The cursor does not advance past a block that fails to decode
			// and the medium remains usable.
			require.Equal(t, BlockNum(0), s.CurrentBlock())
			require.False(t, s.Metrics().Medium.Corrupt)
			m := s.Metrics()
			require.Equal(t, int64(1), m.Errors.Checksum+m.Errors.Decompression)
		})
	}
}

func TestBlockReadErrorLogged(t *testing.T) {
	mem := vfs.NewMem()
	var log base.InMemLogger
	opts := &Options{FS: mem, Logger: &log, Compression: ZstdDefault}
	s := NewSession("tapes", opts)
	defer s.Close()
	mustCreateAndLoad(t, s, "RDE001", CreateParams{Type: MediumData, Capacity: 1 << 20})
	mustWrite(t, s, testPayload(1, 8192))
	mustWrite(t, s, testPayload(2, 100))

	// Zeroing the zstd frame magic leaves a stream the decoder rejects.
	data, err := mem.UnsafeGetFileDataBuffer("tapes/RDE001/data")
	require.NoError(t, err)
	clear(data[:4])
	log.Reset()

	require.NoError(t, s.Rewind())
	_, err = s.ReadBlock(make([]byte, 8192), false, LBPNone)
	require.True(t, errors.Is(err, ErrDecompression), "%+v", err)
	require.Contains(t, log.String(),
		"medium RDE001 block 0 (zstd) failed to decompress: corrupt compressed stream: ")
	require.Equal(t, 1, strings.Count(log.String(), "\n"))

	// The medium stays usable: the next block reads once the bad one is
	// spaced over.
	require.Equal(t, BlockNum(0), s.CurrentBlock())
	require.NoError(t, s.SpaceBlocks(1))
	require.Equal(t, testPayload(2, 100), mustRead(t, s, 100))
	require.False(t, s.Metrics().Medium.Corrupt)
}

func TestEncryption(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	other := bytes.Repeat([]byte{0x22}, 32)
	opts := testOptions(vfs.NewMem())
	opts.Compression = SnappyCompression
	s := NewSession("tapes", opts)
	defer s.Close()
	mustCreateAndLoad(t, s, "ENC001", CreateParams{Type: MediumData, Capacity: 1 << 20})

	require.True(t, errors.Is(s.SetKey(key[:16], nil, nil), ErrEncryptionKey))
	require.NoError(t, s.SetKey(key, []byte("ukad"), []byte("akad")))
	secret := testPayload(8, 3000)
	res := mustWrite(t, s, secret)
	require.Greater(t, int(res.PhysicalSize), 0)
	require.NoError(t, s.SetKey(nil, nil, nil))
	mustWrite(t, s, testPayload(9, 100))

	read := func() error {
		_, err := s.ReadBlock(make([]byte, len(secret)), false, LBPNone)
		return err
	}
	require.NoError(t, s.Rewind())
	require.True(t, errors.Is(read(), ErrEncryptionKey))
	require.Equal(t, BlockNum(0), s.CurrentBlock())

	require.NoError(t, s.SetKey(other, nil, nil))
	require.True(t, errors.Is(read(), ErrEncryptionKey))

	require.NoError(t, s.SetKey(key, []byte("ukad"), []byte("akad")))
	require.Equal(t, secret, mustRead(t, s, len(secret)))
	// Unencrypted blocks read regardless of the key.
	require.Equal(t, testPayload(9, 100), mustRead(t, s, 100))

	// The key survives an unload.
	require.NoError(t, s.Unload())
	require.NoError(t, s.Load("ENC001"))
	require.Equal(t, secret, mustRead(t, s, len(secret)))
}

// TestStickyCorruption injects a failure into the index truncation of an
// overwrite. The medium is left inconsistent: every later block operation
// fails until the medium is unloaded, and it cannot be loaded again.
func TestStickyCorruption(t *testing.T) {
	mem := vfs.NewMem()
	toggle := &errorfs.Toggle{Injector: errorfs.Always()}
	fs := errorfs.Wrap(mem, errorfs.PathMatch("indx", errorfs.OnOps(toggle, errorfs.OpFileTruncate)))
	var log base.InMemLogger
	opts := testOptions(fs)
	opts.Logger = &log
	s := NewSession("tapes", opts)
	defer s.Close()
	mustCreateAndLoad(t, s, "BAD001", CreateParams{Type: MediumData, Capacity: 1 << 20})
	for i := 0; i < 3; i++ {
		mustWrite(t, s, testPayload(i, 100))
	}

	require.NoError(t, s.PositionToBlock(1))
	toggle.On()
	_, err := s.WriteBlock(testPayload(7, 10), LBPNone)
	require.True(t, errors.Is(err, ErrInconsistent), "%+v", err)
	require.True(t, errors.Is(err, errorfs.ErrInjected))
	toggle.Off()
	require.True(t, s.Metrics().Medium.Corrupt)
	require.Contains(t, log.String(), "medium BAD001 corrupt at block 1")

	require.True(t, errors.Is(s.Rewind(), ErrCorruption))
	_, err = s.ReadBlock(make([]byte, 100), false, LBPNone)
	require.True(t, errors.Is(err, ErrCorruption))
	_, err = s.WriteBlock(testPayload(7, 10), LBPNone)
	require.True(t, errors.Is(err, ErrCorruption))
	require.True(t, errors.Is(s.WriteFilemarks(0), ErrCorruption))

	require.NoError(t, s.Unload())
	require.False(t, s.Loaded())
	err = s.Load("BAD001")
	require.True(t, errors.Is(err, ErrCorruption), "%+v", err)
	require.False(t, s.Loaded())
	require.Equal(t, int64(2), s.Metrics().Errors.Corruption)
}

func TestNullMediumKeepsNoPayload(t *testing.T) {
	mem := vfs.NewMem()
	s := NewSession("tapes", testOptions(mem))
	defer s.Close()
	mustCreateAndLoad(t, s, "NUL001", CreateParams{Type: MediumNull, Capacity: 1 << 20})
	for i := 0; i < 4; i++ {
		res := mustWrite(t, s, testPayload(i, 4096))
		require.Equal(t, uint32(4096), res.PhysicalSize)
	}
	require.NoError(t, s.WriteFilemarks(0))
	fi, err := mem.Stat("tapes/NUL001/data")
	require.NoError(t, err)
	require.Equal(t, int64(0), fi.Size())

	_, frontier := s.EndOfData()
	require.Equal(t, uint64(4*4096), frontier)
	require.NoError(t, s.PositionToBlock(2))
	require.Equal(t, make([]byte, 4096), mustRead(t, s, 4096))
}

func TestCreateExisting(t *testing.T) {
	mem := vfs.NewMem()
	opts := testOptions(mem)
	params := CreateParams{Type: MediumData, Capacity: 1 << 20, Serial: "SN0001"}
	require.NoError(t, Create("tapes", "EXIST1", params, opts))
	err := Create("tapes", "EXIST1", CreateParams{Type: MediumWORM, Capacity: 10}, opts)
	require.True(t, errors.Is(err, ErrExist), "%+v", err)

	require.Error(t, Create("tapes", "", params, opts))
	require.Error(t, Create("tapes", strings.Repeat("X", 40), params, opts))

	s := NewSession("tapes", opts)
	defer s.Close()
	require.NoError(t, s.Load("EXIST1"))
	m, err := s.MAM()
	require.NoError(t, err)
	require.Equal(t, MediumData, m.Type)
	require.Equal(t, "SN0001", m.Serial)
	require.Equal(t, uint64(1<<20)/100, m.EarlyWarningZone)
	require.Error(t, s.Load("EXIST1"))

	require.True(t, errors.Is(NewSession("tapes", opts).Load("NOPE01"), ErrMediumNotPresent))
}

func TestOptionsRoundTrip(t *testing.T) {
	opts := &Options{
		Compression:      ZstdDefault,
		DisableChecksums: true,
		Format:           FormatLegacy,
		Manufacturer:     "ACME",
	}
	str := opts.String()
	require.Equal(t, `[Version]
  vtape_version=0.1

[Options]
  compression=zstd3
  disable_checksums=true
  format=legacy
  manufacturer=ACME
`, str)

	var parsed Options
	require.NoError(t, parsed.Parse(str, nil))
	require.Equal(t, str, parsed.String())

	unknown := str + "  future_option=1\n"
	require.Error(t, parsed.Parse(unknown, nil))
	require.NoError(t, parsed.Parse(unknown, &ParseHooks{
		SkipUnknown: func(name, value string) bool { return name == "Options.future_option" },
	}))

	bad := *opts
	bad.Manufacturer = strings.Repeat("m", 33)
	require.Error(t, bad.Validate())
}

func TestTeeEventListener(t *testing.T) {
	var loads, unloads, warnings, truncates int
	counting := EventListener{
		MediumLoaded:   func(MediumInfo) { loads++ },
		MediumUnloaded: func(MediumInfo) { unloads++ },
		EarlyWarning:   func(CapacityInfo) { warnings++ },
		Truncated:      func(TruncateInfo) { truncates++ },
	}
	var log base.InMemLogger
	el := TeeEventListener(counting, MakeLoggingEventListener(&log))
	opts := testOptions(vfs.NewMem())
	opts.EventListener = &el
	s := NewSession("tapes", opts)
	defer s.Close()

	mustCreateAndLoad(t, s, "TEE001", CreateParams{Type: MediumData, Capacity: 1000, EarlyWarningZone: 500})
	mustWrite(t, s, testPayload(1, 600))
	res := mustWrite(t, s, testPayload(2, 10))
	require.True(t, res.EarlyWarning)
	require.NoError(t, s.Rewind())
	mustWrite(t, s, testPayload(3, 10))
	require.NoError(t, s.Unload())

	require.Equal(t, 1, loads)
	require.Equal(t, 1, unloads)
	require.Equal(t, 1, warnings)
	require.Equal(t, 1, truncates)
	require.Equal(t, `medium TEE001 created (indexed, data, capacity 1000)
loaded medium TEE001 (indexed, data): 0 blocks, 0 filemarks, load 1
medium TEE001 early warning at offset 600 of 1000 (390 remaining)
medium TEE001 truncated from block 0: 2 blocks, 0 filemarks discarded
unloaded medium TEE001 (indexed, data): 1 blocks, 0 filemarks, load 1
`, log.String())
}

func TestMetricsString(t *testing.T) {
	s := NewSession("tapes", testOptions(vfs.NewMem()))
	defer s.Close()
	require.Contains(t, s.Metrics().String(), "medium: not loaded")

	mustCreateAndLoad(t, s, "MET001", CreateParams{Type: MediumData, Capacity: 1 << 20})
	mustWrite(t, s, testPayload(1, 2048))
	mustWrite(t, s, testPayload(2, 2048))
	require.NoError(t, s.WriteFilemarks(1))
	require.NoError(t, s.Rewind())
	_, err := s.ReadBlock(make([]byte, 4096), false, LBPNone)
	require.NoError(t, err)

	str := s.Metrics().String()
	require.Contains(t, str, "medium: MET001 indexed data at block 1 of 3, 1 filemarks\n")
	require.Contains(t, str, "capacity: 4.0 KiB used, 1020 KiB remaining of 1.0 MiB\n")
	require.Contains(t, str, "loads: 1\n")
	require.Contains(t, str, "write: 2 blocks, 1 filemarks, 4.0 KiB logical, 4.0 KiB physical (ratio 1.00)")
	require.Contains(t, str, "read: 1 blocks, 2.0 KiB, 1 incorrect length, 0 filemarks\n")
}

func TestSyncLatency(t *testing.T) {
	opts := testOptions(vfs.NewMem())
	opts.SyncLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_latency",
		Buckets: []float64{1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9},
	})
	s := NewSession("tapes", opts)
	defer s.Close()
	mustCreateAndLoad(t, s, "SYN001", CreateParams{Type: MediumData, Capacity: 1 << 20})
	mustWrite(t, s, testPayload(1, 10))
	require.NoError(t, s.WriteFilemarks(0))
	require.NoError(t, s.WriteFilemarks(0))
	require.NoError(t, s.Unload())

	metric := &dto.Metric{}
	require.NoError(t, opts.SyncLatency.Write(metric))
	require.Equal(t, uint64(3), metric.GetHistogram().GetSampleCount())
	require.Equal(t, int64(2), s.Metrics().Write.Flushes)
}
