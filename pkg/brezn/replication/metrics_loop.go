package replication

import "time"

const metricsRefreshInterval = 30 * time.Second

// circuitHealthReporter is satisfied by *socks5.Supervisor when Tor is
// enabled; Engine checks for it via a type assertion so it stays
// decoupled from the socks5 package.
type circuitHealthReporter interface {
	OverallHealth() float64
	CircuitCount() int
}

// metricsLoop periodically refreshes the gauges that depend on
// point-in-time state (peer count, topology segments, circuit health)
// rather than being updated inline by the operation that changes them.
func (e *Engine) metricsLoop() {
	if e.metrics == nil {
		return
	}
	ticker := time.NewTicker(metricsRefreshInterval)
	defer ticker.Stop()
	e.refreshMetrics()
	for {
		select {
		case <-e.ctx:
			return
		case <-ticker.C:
			e.refreshMetrics()
		}
	}
}

func (e *Engine) refreshMetrics() {
	e.metrics.SetPeerCount(e.registry.Size())

	topo := e.registry.Topology()
	for _, seg := range topo.Segments {
		e.metrics.SetTopologySegment(string(seg.Type), len(seg.Members))
	}

	if reporter, ok := e.dialer.(circuitHealthReporter); ok {
		e.metrics.SetCircuitHealth(reporter.OverallHealth())
		e.metrics.SetCircuitCount(reporter.CircuitCount())
	}
}
