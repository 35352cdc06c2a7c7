package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_HandlerExposesCountersAfterIncrement(t *testing.T) {
	c := New()
	c.IncBroadcastSent()
	c.IncBroadcastSent()
	c.IncPostIngested()
	c.SetPeerCount(3)
	c.SetTopologySegment("core", 2)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "brezn_broadcasts_sent_total 2")
	assert.Contains(t, body, "brezn_posts_ingested_total 1")
	assert.Contains(t, body, "brezn_peer_count 3")
	assert.Contains(t, body, `brezn_topology_segment_peers{segment="core"} 2`)
}

func TestCollector_NilReceiverMethodsAreNoOps(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.IncBroadcastSent()
		c.IncPostIngested()
		c.SetPeerCount(1)
		c.SetCircuitHealth(0.5)
		c.SetTopologySegment("edge", 1)
		_ = c.Handler()
	})
}
