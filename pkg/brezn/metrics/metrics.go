// Package metrics exposes Brezn's runtime counters and gauges to
// Prometheus, following the same registry-plus-handler shape as
// facebook-time's sptp exporter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private Prometheus registry and every gauge/counter
// Brezn reports. A nil *Collector is valid and every method becomes a
// no-op, so components can hold an optional metrics field without a
// separate no-op implementation.
type Collector struct {
	registry *prometheus.Registry

	peerCount        prometheus.Gauge
	circuitHealth    prometheus.Gauge
	circuitCount     prometheus.Gauge
	topologySegments *prometheus.GaugeVec

	broadcastsSent      prometheus.Counter
	broadcastsReceived  prometheus.Counter
	broadcastsForwarded prometheus.Counter
	syncRequestsSent    prometheus.Counter
	syncRequestsRecv    prometheus.Counter
	postsIngested       prometheus.Counter
	conflictsDetected   prometheus.Counter
	conflictsResolved   prometheus.Counter
}

// New builds a Collector with every metric registered under a fresh
// Prometheus registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		peerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brezn_peer_count",
			Help: "Number of peers currently tracked in the registry.",
		}),
		circuitHealth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brezn_circuit_health",
			Help: "Average health score across SOCKS5 circuits, 0 to 1.",
		}),
		circuitCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brezn_circuit_count",
			Help: "Number of SOCKS5 circuits currently tracked.",
		}),
		topologySegments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "brezn_topology_segment_peers",
			Help: "Peers per derived topology segment kind.",
		}, []string{"segment"}),
		broadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brezn_broadcasts_sent_total",
			Help: "Posts published locally and fanned out as post_broadcast.",
		}),
		broadcastsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brezn_broadcasts_received_total",
			Help: "Inbound post_broadcast messages accepted for processing.",
		}),
		broadcastsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brezn_broadcasts_forwarded_total",
			Help: "post_broadcast messages forwarded on to a peer.",
		}),
		syncRequestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brezn_sync_requests_sent_total",
			Help: "sync_request messages issued to peers.",
		}),
		syncRequestsRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brezn_sync_requests_received_total",
			Help: "sync_request messages answered.",
		}),
		postsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brezn_posts_ingested_total",
			Help: "Posts accepted into the store across all ingestion paths.",
		}),
		conflictsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brezn_conflicts_detected_total",
			Help: "Conflicting post pairs detected during ingestion.",
		}),
		conflictsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brezn_conflicts_resolved_total",
			Help: "Conflicts resolved automatically, excluding Manual strategy.",
		}),
	}

	reg.MustRegister(
		c.peerCount,
		c.circuitHealth,
		c.circuitCount,
		c.topologySegments,
		c.broadcastsSent,
		c.broadcastsReceived,
		c.broadcastsForwarded,
		c.syncRequestsSent,
		c.syncRequestsRecv,
		c.postsIngested,
		c.conflictsDetected,
		c.conflictsResolved,
	)
	return c
}

// Handler returns the HTTP handler to mount at /metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (c *Collector) SetPeerCount(n int) {
	if c == nil {
		return
	}
	c.peerCount.Set(float64(n))
}

func (c *Collector) SetCircuitHealth(health float64) {
	if c == nil {
		return
	}
	c.circuitHealth.Set(health)
}

func (c *Collector) SetCircuitCount(n int) {
	if c == nil {
		return
	}
	c.circuitCount.Set(float64(n))
}

func (c *Collector) SetTopologySegment(kind string, peers int) {
	if c == nil {
		return
	}
	c.topologySegments.WithLabelValues(kind).Set(float64(peers))
}

func (c *Collector) IncBroadcastSent() {
	if c != nil {
		c.broadcastsSent.Inc()
	}
}

func (c *Collector) IncBroadcastReceived() {
	if c != nil {
		c.broadcastsReceived.Inc()
	}
}

func (c *Collector) IncBroadcastForwarded() {
	if c != nil {
		c.broadcastsForwarded.Inc()
	}
}

func (c *Collector) IncSyncRequestSent() {
	if c != nil {
		c.syncRequestsSent.Inc()
	}
}

func (c *Collector) IncSyncRequestReceived() {
	if c != nil {
		c.syncRequestsRecv.Inc()
	}
}

func (c *Collector) IncPostIngested() {
	if c != nil {
		c.postsIngested.Inc()
	}
}

func (c *Collector) IncConflictDetected() {
	if c != nil {
		c.conflictsDetected.Inc()
	}
}

func (c *Collector) IncConflictResolved() {
	if c != nil {
		c.conflictsResolved.Inc()
	}
}
