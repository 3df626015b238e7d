// Package metrics provides Prometheus metrics for pagestore
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for pagestore
type Metrics struct {
	// Page allocator metrics
	PageAllocsTotal   prometheus.Counter
	PageDeallocsTotal prometheus.Counter
	FileSizePages     prometheus.Gauge

	// Heap metrics
	HeapAllocsTotal    prometheus.Counter
	HeapFreesTotal     prometheus.Counter
	HeapBytesAllocated prometheus.Counter

	// Statement metrics
	StatementsTotal *prometheus.CounterVec

	// Operation metrics
	DbOperationDuration *prometheus.HistogramVec
}

var (
	shared     *Metrics
	sharedOnce sync.Once
)

// Shared returns the process-wide metrics instance, registering the
// collectors with the default registry on first use. No exposition
// endpoint is started; an embedding process serves the registry itself.
func Shared() *Metrics {
	sharedOnce.Do(func() {
		shared = newMetrics()
	})
	return shared
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.PageAllocsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagestore_page_allocs_total",
			Help: "Total number of pages taken from the free list",
		},
	)

	m.PageDeallocsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagestore_page_deallocs_total",
			Help: "Total number of pages handed back to the free list",
		},
	)

	m.FileSizePages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagestore_file_size_pages",
			Help: "Current database file size in pages",
		},
	)

	m.HeapAllocsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagestore_heap_allocs_total",
			Help: "Total number of heap fragment allocations",
		},
	)

	m.HeapFreesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagestore_heap_frees_total",
			Help: "Total number of heap fragment releases",
		},
	)

	m.HeapBytesAllocated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagestore_heap_bytes_allocated_total",
			Help: "Total payload bytes allocated on the heap",
		},
	)

	m.StatementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagestore_statements_total",
			Help: "Total number of REPL statements processed",
		},
		[]string{"status"},
	)

	m.DbOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagestore_db_operation_duration_seconds",
			Help:    "Duration of database file operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	return m
}

// RecordDbOperation records a database file operation
func (m *Metrics) RecordDbOperation(operation string, duration time.Duration) {
	m.DbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHeapAlloc records a heap allocation of the given payload size
func (m *Metrics) RecordHeapAlloc(bytes int) {
	m.HeapAllocsTotal.Inc()
	m.HeapBytesAllocated.Add(float64(bytes))
}

// RecordStatement records one processed REPL statement
func (m *Metrics) RecordStatement(status string) {
	m.StatementsTotal.WithLabelValues(status).Inc()
}
