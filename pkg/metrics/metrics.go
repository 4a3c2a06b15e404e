// Package metrics exposes the engine's Prometheus collectors: record
// counts per entity kind, attribute codec traffic, decode-cache
// effectiveness and registry reconciliation activity.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CountsFunc reports the current number of records per entity kind.
type CountsFunc func() map[string]int

// Metrics holds the Prometheus metric descriptors for the engine. Each
// Metrics value registers on its own registry, so constructing one per
// process (or per test) never trips duplicate registration.
type Metrics struct {
	reg       *prometheus.Registry
	counts    CountsFunc
	startTime time.Time

	records            *prometheus.GaugeVec
	attrEncodes        prometheus.Counter
	attrDecodes        prometheus.Counter
	attrDecodeFailures prometheus.Counter
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	reconciles         prometheus.Counter
	uptimeSeconds      prometheus.Gauge
	memoryHeapBytes    prometheus.Gauge
	goroutines         prometheus.Gauge
}

// New creates and registers the engine metrics. counts supplies record
// totals per kind on every Update; nil leaves the record gauges at
// zero.
func New(counts CountsFunc) *Metrics {
	m := &Metrics{
		reg:       prometheus.NewRegistry(),
		counts:    counts,
		startTime: time.Now(),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lanternmush_records",
			Help: "Number of records in the database by entity kind.",
		}, []string{"kind"}),
		attrEncodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanternmush_attr_encodes_total",
			Help: "Total attribute values encoded for storage.",
		}),
		attrDecodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanternmush_attr_decodes_total",
			Help: "Total attribute payloads decoded from storage.",
		}),
		attrDecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanternmush_attr_decode_failures_total",
			Help: "Total attribute payloads that failed to decode.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanternmush_attr_cache_hits_total",
			Help: "Attribute reads served from the decode cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanternmush_attr_cache_misses_total",
			Help: "Attribute reads that had to decode from storage.",
		}),
		reconciles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanternmush_registry_reconciles_total",
			Help: "Global scripts created or recreated by the registry.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanternmush_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanternmush_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanternmush_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.reg.MustRegister(
		m.records,
		m.attrEncodes,
		m.attrDecodes,
		m.attrDecodeFailures,
		m.cacheHits,
		m.cacheMisses,
		m.reconciles,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

// Update refreshes all gauges from current engine state.
func (m *Metrics) Update() {
	if m.counts != nil {
		for kind, n := range m.counts() {
			m.records.WithLabelValues(kind).Set(float64(n))
		}
	}

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates the gauges before
// serving the scrape.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}

// The attribute store reports codec and cache traffic through these.

func (m *Metrics) AttrEncode()        { m.attrEncodes.Inc() }
func (m *Metrics) AttrDecode()        { m.attrDecodes.Inc() }
func (m *Metrics) AttrDecodeFailure() { m.attrDecodeFailures.Inc() }
func (m *Metrics) CacheHit()          { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss()         { m.cacheMisses.Inc() }

// RegistryReconcile counts a global script created or recreated during
// registry reconciliation.
func (m *Metrics) RegistryReconcile() { m.reconciles.Inc() }
