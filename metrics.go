package coopvm

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for a Runtime.
type Metrics struct {
	// VBLK operation counters
	VBLKReadOps  atomic.Uint64
	VBLKWriteOps atomic.Uint64

	// Byte counters
	VBLKReadBytes  atomic.Uint64
	VBLKWriteBytes atomic.Uint64
	TTYPushBytes   atomic.Uint64
	TTYPullBytes   atomic.Uint64

	// Error counters
	VBLKReadErrors  atomic.Uint64
	VBLKWriteErrors atomic.Uint64
	TickErrors      atomic.Uint64

	// Tick counters
	TickCount atomic.Uint64

	// Queue statistics
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts)
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Runtime lifecycle
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordVBLKRead records a VBLK read operation.
func (m *Metrics) RecordVBLKRead(bytes uint64, latencyNs uint64, success bool) {
	m.VBLKReadOps.Add(1)
	if success {
		m.VBLKReadBytes.Add(bytes)
	} else {
		m.VBLKReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordVBLKWrite records a VBLK write operation.
func (m *Metrics) RecordVBLKWrite(bytes uint64, latencyNs uint64, success bool) {
	m.VBLKWriteOps.Add(1)
	if success {
		m.VBLKWriteBytes.Add(bytes)
	} else {
		m.VBLKWriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordTick records one run_tick call.
func (m *Metrics) RecordTick(success bool) {
	m.TickCount.Add(1)
	if !success {
		m.TickErrors.Add(1)
	}
}

// RecordTTYPush records bytes accepted by vtty_push.
func (m *Metrics) RecordTTYPush(bytes uint64) {
	m.TTYPushBytes.Add(bytes)
}

// RecordTTYPull records bytes returned by vtty_pull.
func (m *Metrics) RecordTTYPull(bytes uint64) {
	m.TTYPullBytes.Add(bytes)
}

// RecordQueueDepth records the current VBLK Queue inflight depth.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the runtime as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	VBLKReadOps  uint64
	VBLKWriteOps uint64

	VBLKReadBytes  uint64
	VBLKWriteBytes uint64
	TTYPushBytes   uint64
	TTYPullBytes   uint64

	VBLKReadErrors  uint64
	VBLKWriteErrors uint64
	TickErrors      uint64
	TickCount       uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	VBLKReadIOPS  float64
	VBLKWriteIOPS float64
	TotalOps      uint64
	TotalBytes    uint64
	ErrorRate     float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		VBLKReadOps:     m.VBLKReadOps.Load(),
		VBLKWriteOps:    m.VBLKWriteOps.Load(),
		VBLKReadBytes:   m.VBLKReadBytes.Load(),
		VBLKWriteBytes:  m.VBLKWriteBytes.Load(),
		TTYPushBytes:    m.TTYPushBytes.Load(),
		TTYPullBytes:    m.TTYPullBytes.Load(),
		VBLKReadErrors:  m.VBLKReadErrors.Load(),
		VBLKWriteErrors: m.VBLKWriteErrors.Load(),
		TickErrors:      m.TickErrors.Load(),
		TickCount:       m.TickCount.Load(),
		MaxQueueDepth:   m.MaxQueueDepth.Load(),
	}

	snap.TotalOps = snap.VBLKReadOps + snap.VBLKWriteOps
	snap.TotalBytes = snap.VBLKReadBytes + snap.VBLKWriteBytes

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.VBLKReadIOPS = float64(snap.VBLKReadOps) / uptimeSeconds
		snap.VBLKWriteIOPS = float64(snap.VBLKWriteOps) / uptimeSeconds
	}

	totalErrors := snap.VBLKReadErrors + snap.VBLKWriteErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.VBLKReadOps.Store(0)
	m.VBLKWriteOps.Store(0)
	m.VBLKReadBytes.Store(0)
	m.VBLKWriteBytes.Store(0)
	m.TTYPushBytes.Store(0)
	m.TTYPullBytes.Store(0)
	m.VBLKReadErrors.Store(0)
	m.VBLKWriteErrors.Store(0)
	m.TickErrors.Store(0)
	m.TickCount.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection, mirrored by MetricsObserver.
type Observer interface {
	ObserveVBLKRead(bytes uint64, latencyNs uint64, success bool)
	ObserveVBLKWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveTick(success bool)
	ObserveTTYPush(bytes uint64)
	ObserveTTYPull(bytes uint64)
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveVBLKRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveVBLKWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveTick(bool)                      {}
func (NoOpObserver) ObserveTTYPush(uint64)                 {}
func (NoOpObserver) ObserveTTYPull(uint64)                 {}
func (NoOpObserver) ObserveQueueDepth(uint32)              {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveVBLKRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordVBLKRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveVBLKWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordVBLKWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveTick(success bool) {
	o.metrics.RecordTick(success)
}

func (o *MetricsObserver) ObserveTTYPush(bytes uint64) {
	o.metrics.RecordTTYPush(bytes)
}

func (o *MetricsObserver) ObserveTTYPull(bytes uint64) {
	o.metrics.RecordTTYPull(bytes)
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
