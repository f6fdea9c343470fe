package knncache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus
// (see the observability package).
type MetricsCollector interface {
	// RecordQuery is called after each neighbor-list lookup.
	// cached reports whether the list came from memory without recomputation.
	RecordQuery(cached bool, duration time.Duration, err error)

	// RecordWrite is called after each cache file write.
	RecordWrite(records int, duration time.Duration, err error)

	// RecordMerge is called after each cache file merge.
	// read is the number of records in the file, added the number inserted.
	RecordMerge(read, added int, duration time.Duration, err error)

	// RecordPiece is called after a piece of the sharded build completes.
	RecordPiece(piece, records int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordQuery(bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordWrite(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordMerge(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordPiece(int, int, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	QueryCount      atomic.Int64
	QueryCached     atomic.Int64
	QueryErrors     atomic.Int64
	QueryTotalNanos atomic.Int64
	WriteCount      atomic.Int64
	WriteRecords    atomic.Int64
	WriteErrors     atomic.Int64
	MergeCount      atomic.Int64
	MergeRead       atomic.Int64
	MergeAdded      atomic.Int64
	MergeErrors     atomic.Int64
	PieceCount      atomic.Int64
	PieceRecords    atomic.Int64
	PieceTotalNanos atomic.Int64
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(cached bool, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if cached {
		b.QueryCached.Add(1)
	}
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(records int, _ time.Duration, err error) {
	b.WriteCount.Add(1)
	if err != nil {
		b.WriteErrors.Add(1)
		return
	}
	b.WriteRecords.Add(int64(records))
}

// RecordMerge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMerge(read, added int, _ time.Duration, err error) {
	b.MergeCount.Add(1)
	if err != nil {
		b.MergeErrors.Add(1)
		return
	}
	b.MergeRead.Add(int64(read))
	b.MergeAdded.Add(int64(added))
}

// RecordPiece implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPiece(_ int, records int, duration time.Duration) {
	b.PieceCount.Add(1)
	b.PieceRecords.Add(int64(records))
	b.PieceTotalNanos.Add(duration.Nanoseconds())
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		QueryCount:    b.QueryCount.Load(),
		QueryCached:   b.QueryCached.Load(),
		QueryErrors:   b.QueryErrors.Load(),
		QueryAvgNanos: b.getAvgQueryNanos(),
		WriteCount:    b.WriteCount.Load(),
		WriteRecords:  b.WriteRecords.Load(),
		WriteErrors:   b.WriteErrors.Load(),
		MergeCount:    b.MergeCount.Load(),
		MergeRead:     b.MergeRead.Load(),
		MergeAdded:    b.MergeAdded.Load(),
		MergeErrors:   b.MergeErrors.Load(),
		PieceCount:    b.PieceCount.Load(),
		PieceRecords:  b.PieceRecords.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	QueryCount    int64
	QueryCached   int64
	QueryErrors   int64
	QueryAvgNanos int64
	WriteCount    int64
	WriteRecords  int64
	WriteErrors   int64
	MergeCount    int64
	MergeRead     int64
	MergeAdded    int64
	MergeErrors   int64
	PieceCount    int64
	PieceRecords  int64
}
