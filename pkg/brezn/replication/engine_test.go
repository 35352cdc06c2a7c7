package replication

import (
	"net"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabena/brezn/pkg/brezn/definition"
	"github.com/dabena/brezn/pkg/brezn/metrics"
	"github.com/dabena/brezn/pkg/brezn/registry"
	"github.com/dabena/brezn/pkg/brezn/store"
	"github.com/dabena/brezn/pkg/brezn/types"
)

type testNode struct {
	engine   *Engine
	store    *store.Store
	registry *registry.Registry
	port     uint16
}

func startTestNode(t *testing.T, nodeID string) *testNode {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), nodeID+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := registry.New(10, 3, definition.NewDefaultLogger(nodeID, false))
	log := definition.NewDefaultLogger(nodeID, false)
	cfg := Config{NodeID: nodeID, ListenPort: 0, ConnectionTimeout: 2 * time.Second}
	eng := New(cfg, st, reg, log, definition.SystemClock{}, NewDirectDialer(2*time.Second))
	require.NoError(t, eng.Start())
	t.Cleanup(eng.Stop)

	_, portStr, err := net.SplitHostPort(eng.listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return &testNode{engine: eng, store: st, registry: reg, port: uint16(port)}
}

func TestEngine_PublishPersistsLocally(t *testing.T) {
	node := startTestNode(t, "node-a")
	id, err := node.engine.Publish("hello world", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, id.Hash)

	posts, err := node.store.QueryRecent(10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "hello world", posts[0].Content)
}

func TestEngine_PublishBroadcastsToKnownPeers(t *testing.T) {
	a := startTestNode(t, "node-a")
	b := startTestNode(t, "node-b")

	a.registry.Upsert(types.PeerInfo{NodeID: "node-b", Address: "127.0.0.1", Port: b.port})

	_, err := a.engine.Publish("gossip me", "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		posts, err := b.store.QueryRecent(10)
		return err == nil && len(posts) == 1 && posts[0].Content == "gossip me"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestEngine_RequestSyncPullsPeerPosts(t *testing.T) {
	a := startTestNode(t, "node-a")
	b := startTestNode(t, "node-b")

	_, err := b.engine.Publish("already on b", "carol")
	require.NoError(t, err)

	err = a.engine.RequestSync(types.PeerInfo{NodeID: "node-b", Address: "127.0.0.1", Port: b.port}, 0, 100, types.SyncIncremental)
	require.NoError(t, err)

	posts, err := a.store.QueryRecent(10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "already on b", posts[0].Content)
}

func TestEngine_PingPong(t *testing.T) {
	a := startTestNode(t, "node-a")
	b := startTestNode(t, "node-b")

	err := a.engine.ping(types.PeerInfo{NodeID: "node-b", Address: "127.0.0.1", Port: b.port})
	assert.NoError(t, err)
}

func TestEngine_EnsureFeedConsistencySyncsAllKnownPeers(t *testing.T) {
	a := startTestNode(t, "node-a")
	b := startTestNode(t, "node-b")
	c := startTestNode(t, "node-c")

	_, err := b.engine.Publish("from b", "dave")
	require.NoError(t, err)
	_, err = c.engine.Publish("from c", "erin")
	require.NoError(t, err)

	a.registry.Upsert(types.PeerInfo{NodeID: "node-b", Address: "127.0.0.1", Port: b.port})
	a.registry.Upsert(types.PeerInfo{NodeID: "node-c", Address: "127.0.0.1", Port: c.port})

	require.NoError(t, a.engine.EnsureFeedConsistency())

	posts, err := a.store.QueryRecent(10)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

type fakeCircuitReporter struct {
	directDialer
	health float64
	count  int
}

func (f fakeCircuitReporter) OverallHealth() float64 { return f.health }
func (f fakeCircuitReporter) CircuitCount() int      { return f.count }

func TestEngine_RefreshMetricsPullsPeerCountAndCircuitHealth(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "node-metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := registry.New(10, 3, definition.NewDefaultLogger("node-metrics", false))
	reg.Upsert(types.PeerInfo{NodeID: "peer-x", Address: "127.0.0.1", Port: 1, Quality: types.QualityExcellent})

	collector := metrics.New()
	dialer := fakeCircuitReporter{health: 0.75, count: 2}
	eng := New(Config{NodeID: "node-metrics", ListenPort: 0, ConnectionTimeout: time.Second}, st, reg, definition.NewDefaultLogger("node-metrics", false), definition.SystemClock{}, dialer).WithMetrics(collector)
	require.NoError(t, eng.Start())
	t.Cleanup(eng.Stop)

	eng.refreshMetrics()

	body := scrapeMetrics(t, collector)
	assert.Contains(t, body, "brezn_peer_count 1")
	assert.Contains(t, body, "brezn_circuit_health 0.75")
}

func scrapeMetrics(t *testing.T, c *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}
