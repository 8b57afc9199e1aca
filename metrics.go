package balltree

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordBuild is called after tree construction.
	// n is the number of points indexed, err is nil if successful.
	RecordBuild(n int, duration time.Duration, err error)

	// RecordKNN is called after each k-nearest-neighbor query.
	RecordKNN(k int, duration time.Duration, err error)

	// RecordRadius is called after each radius query.
	// found is the number of admitted points (or the count in count-only mode).
	RecordRadius(found int, duration time.Duration, err error)

	// RecordSnapshot records a snapshot save or load. No package of
	// this module calls it; the persistence package does not report
	// to a MetricsCollector.
	RecordSnapshot(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordKNN(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordRadius(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordSnapshot(int64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BuildCount         atomic.Int64
	BuildErrors        atomic.Int64
	KNNCount           atomic.Int64
	KNNErrors          atomic.Int64
	KNNTotalNanos      atomic.Int64
	RadiusCount        atomic.Int64
	RadiusErrors       atomic.Int64
	RadiusTotalNanos   atomic.Int64
	SnapshotCount      atomic.Int64
	SnapshotErrors     atomic.Int64
	SnapshotTotalBytes atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(n int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordKNN implements MetricsCollector.
func (b *BasicMetricsCollector) RecordKNN(k int, duration time.Duration, err error) {
	b.KNNCount.Add(1)
	b.KNNTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.KNNErrors.Add(1)
	}
}

// RecordRadius implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRadius(found int, duration time.Duration, err error) {
	b.RadiusCount.Add(1)
	b.RadiusTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RadiusErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes int64, duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	b.SnapshotTotalBytes.Add(bytes)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BuildCount:         b.BuildCount.Load(),
		BuildErrors:        b.BuildErrors.Load(),
		KNNCount:           b.KNNCount.Load(),
		KNNErrors:          b.KNNErrors.Load(),
		KNNAvgNanos:        avg(b.KNNTotalNanos.Load(), b.KNNCount.Load()),
		RadiusCount:        b.RadiusCount.Load(),
		RadiusErrors:       b.RadiusErrors.Load(),
		RadiusAvgNanos:     avg(b.RadiusTotalNanos.Load(), b.RadiusCount.Load()),
		SnapshotCount:      b.SnapshotCount.Load(),
		SnapshotErrors:     b.SnapshotErrors.Load(),
		SnapshotTotalBytes: b.SnapshotTotalBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount         int64
	BuildErrors        int64
	KNNCount           int64
	KNNErrors          int64
	KNNAvgNanos        int64
	RadiusCount        int64
	RadiusErrors       int64
	RadiusAvgNanos     int64
	SnapshotCount      int64
	SnapshotErrors     int64
	SnapshotTotalBytes int64
}
