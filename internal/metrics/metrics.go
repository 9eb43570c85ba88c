// Package metrics exposes Prometheus instrumentation for the transfer
// coordinator and VFS adapter. Nothing is registered at package init:
// NewCollectors registers a fresh set against the registerer it is given.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups the gauges/counters/histograms the coordinator and VFS
// adapter update. A nil *Collectors (returned by NewNop) makes every method
// a no-op, so instrumentation can be threaded through without a nil-check
// at every call site.
type Collectors struct {
	DeviceOps       *prometheus.CounterVec
	FlushDuration   prometheus.Histogram
	OpenHandles     prometheus.Gauge
	StreamingBytes  *prometheus.CounterVec
}

// NewCollectors registers a fresh set of collectors against reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		DeviceOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netmdfs",
			Subsystem: "transfer",
			Name:      "device_ops_total",
			Help:      "Device operations issued by the transfer coordinator, by method.",
		}, []string{"method"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netmdfs",
			Subsystem: "transfer",
			Name:      "flush_duration_seconds",
			Help:      "Time to re-encode and commit a UTOC flush.",
			Buckets:   prometheus.DefBuckets,
		}),
		OpenHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netmdfs",
			Subsystem: "vfs",
			Name:      "open_handles",
			Help:      "Entries currently occupied in the file-handle table.",
		}),
		StreamingBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netmdfs",
			Subsystem: "streambuf",
			Name:      "bytes_appended_total",
			Help:      "Bytes appended to streaming file buffers, by read kind (audio/tfs).",
		}, []string{"kind"}),
	}
	reg.MustRegister(c.DeviceOps, c.FlushDuration, c.OpenHandles, c.StreamingBytes)
	return c
}

// NewNop returns collectors whose methods are all safe to call but record
// nothing, for use in tests that don't care about metrics.
func NewNop() *Collectors { return nil }

func (c *Collectors) incDeviceOp(method string) {
	if c == nil {
		return
	}
	c.DeviceOps.WithLabelValues(method).Inc()
}

// ObserveDeviceOp records that method was invoked on the device driver.
func (c *Collectors) ObserveDeviceOp(method string) { c.incDeviceOp(method) }

// ObserveFlushSeconds records the duration of a UTOC flush.
func (c *Collectors) ObserveFlushSeconds(seconds float64) {
	if c == nil {
		return
	}
	c.FlushDuration.Observe(seconds)
}

// SetOpenHandles reports the current file-handle table occupancy.
func (c *Collectors) SetOpenHandles(n int) {
	if c == nil {
		return
	}
	c.OpenHandles.Set(float64(n))
}

// AddStreamingBytes records bytes appended to a streaming buffer of the
// given kind ("audio" or "tfs").
func (c *Collectors) AddStreamingBytes(kind string, n int) {
	if c == nil {
		return
	}
	c.StreamingBytes.WithLabelValues(kind).Add(float64(n))
}
