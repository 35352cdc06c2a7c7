package discovery

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabena/brezn/pkg/brezn/definition"
	"github.com/dabena/brezn/pkg/brezn/registry"
	"github.com/dabena/brezn/pkg/brezn/types"
)

func startTestService(t *testing.T, nodeID string, reg *registry.Registry, onNew NewPeerFunc) *Service {
	t.Helper()
	cfg := Config{
		NodeID:            nodeID,
		ListenAddress:     "127.0.0.1",
		DiscoveryPort:     0,
		EnableBroadcast:   false,
		EnableMulticast:   false,
		BroadcastInterval: time.Hour,
		HeartbeatInterval: time.Hour,
		PeerTimeout:       time.Hour,
	}
	log := definition.NewDefaultLogger("test", false)
	svc := New(cfg, reg, log, definition.SystemClock{}, onNew)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	return svc
}

func localPort(t *testing.T, svc *Service) uint16 {
	t.Helper()
	addr, ok := svc.udpConn.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	return uint16(addr.Port)
}

func TestService_PingRegistersPeerAndRepliesPong(t *testing.T) {
	regA := registry.New(10, 3, definition.NewDefaultLogger("a", false))
	regB := registry.New(10, 3, definition.NewDefaultLogger("b", false))

	var mu sync.Mutex
	var seen string
	svcA := startTestService(t, "node-a", regA, func(p types.PeerInfo) {
		mu.Lock()
		seen = p.NodeID
		mu.Unlock()
	})
	svcB := startTestService(t, "node-b", regB, nil)

	require.NoError(t, svcA.Ping("127.0.0.1", localPort(t, svcB)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen == "node-b"
	}, 2*time.Second, 20*time.Millisecond)

	peers := regA.List()
	var found bool
	for _, p := range peers {
		if p.NodeID == "node-b" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestService_UnicastPingRegistersSenderAtReceiver(t *testing.T) {
	reg := registry.New(10, 3, definition.NewDefaultLogger("recv", false))
	recv := startTestService(t, "node-recv", reg, nil)

	sender := startTestService(t, "node-sender", registry.New(10, 3, definition.NewDefaultLogger("send", false)), nil)
	// Direct unicast ping stands in for a broadcast announce in this
	// loopback-only test environment, where a real 255.255.255.255
	// broadcast may be filtered.
	require.NoError(t, sender.Ping("127.0.0.1", localPort(t, recv)))

	require.Eventually(t, func() bool {
		_, ok := reg.Get("node-sender")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}
