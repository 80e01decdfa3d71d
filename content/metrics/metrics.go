// Package metrics exports cache accounting and operation counts via
// prometheus/client_golang, implementing content.Metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector implements content.Metrics over a set of prometheus gauges
// and counters, registered under the "contentcache" namespace.
type Collector struct {
	validEntries  prometheus.Gauge
	dirtyEntries  prometheus.Gauge
	sizeBytes     prometheus.Gauge
	flushQueueLen prometheus.Gauge
	mmapRegions   prometheus.Gauge

	loads        prometheus.Counter
	loadHits     prometheus.Counter
	stores       prometheus.Counter
	purged       prometheus.Counter
	flushed      prometheus.Counter
	flushFailed  prometheus.Counter
}

// NewCollector builds a Collector and registers its metrics with reg.
// Passing prometheus.NewRegistry() keeps metrics scoped to one Cache
// instance (e.g. for tests); passing prometheus.DefaultRegisterer wires
// it into the process's default /metrics endpoint.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		validEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contentcache", Name: "valid_entries", Help: "Number of valid cache entries.",
		}),
		dirtyEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contentcache", Name: "dirty_entries", Help: "Number of dirty (unflushed) cache entries.",
		}),
		sizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contentcache", Name: "size_bytes", Help: "Total bytes held by valid cache entries.",
		}),
		flushQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contentcache", Name: "flush_queue_length", Help: "Entries currently queued for flush.",
		}),
		mmapRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contentcache", Name: "mmap_regions", Help: "Files currently mapped into the region table.",
		}),
		loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contentcache", Name: "loads_total", Help: "Load requests started.",
		}),
		loadHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contentcache", Name: "load_hits_total", Help: "Loads fulfilled by a collaborator fetch.",
		}),
		stores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contentcache", Name: "stores_total", Help: "Store requests accepted.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contentcache", Name: "purged_total", Help: "Entries evicted by the purge engine.",
		}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contentcache", Name: "flushed_total", Help: "Entries successfully flushed to a collaborator.",
		}),
		flushFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contentcache", Name: "flush_failed_total", Help: "Flush attempts that failed or were retried.",
		}),
	}
	reg.MustRegister(
		c.validEntries, c.dirtyEntries, c.sizeBytes, c.flushQueueLen, c.mmapRegions,
		c.loads, c.loadHits, c.stores, c.purged, c.flushed, c.flushFailed,
	)
	return c
}

func (c *Collector) SetValid(n uint64)         { c.validEntries.Set(float64(n)) }
func (c *Collector) SetDirty(n uint64)         { c.dirtyEntries.Set(float64(n)) }
func (c *Collector) SetSize(n uint64)          { c.sizeBytes.Set(float64(n)) }
func (c *Collector) SetFlushQueueLen(n uint64) { c.flushQueueLen.Set(float64(n)) }

// SetMmapRegions is not part of content.Metrics: the cache never sees
// the region table directly, so whoever owns the table (cmd/cached)
// reports its size after each map/unmap.
func (c *Collector) SetMmapRegions(n uint64) { c.mmapRegions.Set(float64(n)) }
func (c *Collector) IncLoads()                 { c.loads.Inc() }
func (c *Collector) IncLoadHits()              { c.loadHits.Inc() }
func (c *Collector) IncStores()                { c.stores.Inc() }
func (c *Collector) IncPurged()                { c.purged.Inc() }
func (c *Collector) IncFlushed()               { c.flushed.Inc() }
func (c *Collector) IncFlushFailed()           { c.flushFailed.Inc() }
