// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package metrics exports the metrics of a vtape session to Prometheus.
package metrics

import (
	"github.com/cockroachdb/vtape"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vtape"

// Source returns a snapshot of a session's metrics. (*vtape.Session).Metrics
// is a Source; it must only be called when the session is not in use, so
// callers driving a session from another goroutine wrap it with their own
// synchronization.
type Source func() *vtape.Metrics

type counterDesc struct {
	desc  *prometheus.Desc
	value func(m *vtape.Metrics) float64
}

// Collector implements prometheus.Collector over a session's metrics. Every
// scrape takes one snapshot from the Source.
type Collector struct {
	src Source

	counters []counterDesc
	gauges   []counterDesc

	writeBytes *prometheus.Desc
	errors     *prometheus.Desc
	medium     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector exporting the metrics returned by src. The
// constant labels are attached to every metric, typically to name the drive.
func NewCollector(src Source, constLabels prometheus.Labels) *Collector {
	newDesc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, constLabels)
	}
	c := &Collector{src: src}
	c.counters = []counterDesc{
		{newDesc("", "loads_total", "Number of media loaded."),
			func(m *vtape.Metrics) float64 { return float64(m.Loads) }},
		{newDesc("write", "blocks_total", "Number of data blocks written."),
			func(m *vtape.Metrics) float64 { return float64(m.Write.Blocks) }},
		{newDesc("write", "filemarks_total", "Number of filemarks written."),
			func(m *vtape.Metrics) float64 { return float64(m.Write.Filemarks) }},
		{newDesc("write", "early_warnings_total", "Number of writes landing in the early-warning zone."),
			func(m *vtape.Metrics) float64 { return float64(m.Write.EarlyWarnings) }},
		{newDesc("write", "end_of_medium_total", "Number of writes refused at the end of medium."),
			func(m *vtape.Metrics) float64 { return float64(m.Write.EndOfMedium) }},
		{newDesc("write", "flushes_total", "Number of flushes."),
			func(m *vtape.Metrics) float64 { return float64(m.Write.Flushes) }},
		{newDesc("read", "blocks_total", "Number of data blocks read."),
			func(m *vtape.Metrics) float64 { return float64(m.Read.Blocks) }},
		{newDesc("read", "bytes_total", "Number of payload bytes read."),
			func(m *vtape.Metrics) float64 { return float64(m.Read.Bytes) }},
		{newDesc("read", "incorrect_length_total", "Number of reads reporting an incorrect length."),
			func(m *vtape.Metrics) float64 { return float64(m.Read.IncorrectLength) }},
		{newDesc("read", "filemarks_total", "Number of filemarks encountered by reads."),
			func(m *vtape.Metrics) float64 { return float64(m.Read.Filemarks) }},
		{newDesc("truncate", "total", "Number of overwrite truncations."),
			func(m *vtape.Metrics) float64 { return float64(m.Truncate.Count) }},
		{newDesc("truncate", "blocks_total", "Number of blocks discarded by truncations."),
			func(m *vtape.Metrics) float64 { return float64(m.Truncate.Blocks) }},
	}
	c.gauges = []counterDesc{
		{newDesc("medium", "loaded", "Whether a medium is loaded."),
			func(m *vtape.Metrics) float64 { return boolValue(m.Medium.Loaded) }},
		{newDesc("medium", "corrupt", "Whether the loaded medium was found corrupt."),
			func(m *vtape.Metrics) float64 { return boolValue(m.Medium.Corrupt) }},
		{newDesc("medium", "position", "Block number of the cursor."),
			func(m *vtape.Metrics) float64 { return float64(m.Medium.Position) }},
		{newDesc("medium", "blocks", "Number of blocks on the loaded medium, filemarks included."),
			func(m *vtape.Metrics) float64 { return float64(m.Medium.Blocks) }},
		{newDesc("medium", "filemarks", "Number of filemarks on the loaded medium."),
			func(m *vtape.Metrics) float64 { return float64(m.Medium.Filemarks) }},
		{newDesc("medium", "frontier_bytes", "Physical offset of the end of data."),
			func(m *vtape.Metrics) float64 { return float64(m.Medium.Frontier) }},
		{newDesc("medium", "capacity_bytes", "Capacity of the loaded medium."),
			func(m *vtape.Metrics) float64 { return float64(m.Medium.MaxCapacity) }},
		{newDesc("medium", "remaining_bytes", "Capacity remaining past the end of data."),
			func(m *vtape.Metrics) float64 { return float64(m.Medium.RemainingCapacity) }},
	}
	c.writeBytes = newDesc("write", "bytes_total", "Number of payload bytes written.", "stage")
	c.errors = newDesc("", "errors_total", "Number of errors by kind.", "kind")
	c.medium = newDesc("medium", "info", "The loaded medium.", "pcl", "format", "type")
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.gauges {
		ch <- d.desc
	}
	ch <- c.writeBytes
	ch <- c.errors
	ch <- c.medium
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.src()
	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, d.value(m))
	}
	for _, d := range c.gauges {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.GaugeValue, d.value(m))
	}
	ch <- prometheus.MustNewConstMetric(c.writeBytes, prometheus.CounterValue, float64(m.Write.LogicalBytes), "logical")
	ch <- prometheus.MustNewConstMetric(c.writeBytes, prometheus.CounterValue, float64(m.Write.PhysicalBytes), "physical")
	for _, e := range []struct {
		kind  string
		count int64
	}{
		{"checksum", m.Errors.Checksum},
		{"decompression", m.Errors.Decompression},
		{"corruption", m.Errors.Corruption},
		{"io", m.Errors.IO},
	} {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(e.count), e.kind)
	}
	if m.Medium.Loaded {
		ch <- prometheus.MustNewConstMetric(c.medium, prometheus.GaugeValue, 1,
			m.Medium.PCL, m.Medium.Format.String(), m.Medium.Type.String())
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
