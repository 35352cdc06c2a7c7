// Package discovery implements peer presence: UDP broadcast and IPv4
// multicast announce/heartbeat/ping exchange that feeds newly seen
// peers into the Peer Registry (§4.5). QR-carried bootstrap payloads
// are handled by package qr, not here.
//
// Grounded on pkg/mcast/core/transport.go's Transport shape (context +
// cancel, a background poll goroutine publishing into a channel,
// Invoker-tracked lifetime), adapted from go-mcast's reliable-broadcast
// transport to a best-effort UDP presence transport.
package discovery

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/dabena/brezn/internal/invoker"
	"github.com/dabena/brezn/pkg/brezn/definition"
	"github.com/dabena/brezn/pkg/brezn/registry"
	"github.com/dabena/brezn/pkg/brezn/types"
)

const maxDatagramSize = 4096

// Config configures the discovery service from the recognized §6
// configuration surface.
type Config struct {
	NodeID           string
	PublicKey        string
	ListenAddress    string // local address advertised to peers
	ListenPort       uint16
	DiscoveryPort    uint16
	EnableBroadcast  bool
	EnableMulticast  bool
	BroadcastAddress string
	MulticastAddress string
	BroadcastInterval time.Duration
	HeartbeatInterval time.Duration
	PeerTimeout       time.Duration
	Capabilities      map[string]bool
}

// NewPeerFunc is invoked whenever a peer not previously present in the
// registry is first observed.
type NewPeerFunc func(types.PeerInfo)

// Service runs the presence announce/listen/sweep loops.
type Service struct {
	cfg      Config
	registry *registry.Registry
	log      definition.Logger
	clock    definition.Clock
	onNew    NewPeerFunc

	mu         sync.Mutex
	udpConn    *net.UDPConn
	mcastPC    *ipv4.PacketConn
	mcastGroup *net.UDPAddr

	ctx    context.Context
	cancel context.CancelFunc
	inv    *invoker.Invoker
}

// New builds a Service; call Start to open sockets and begin the
// announce/listen/sweep loops.
func New(cfg Config, reg *registry.Registry, log definition.Logger, clock definition.Clock, onNew NewPeerFunc) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		registry: reg,
		log:      log,
		clock:    clock,
		onNew:    onNew,
		ctx:      ctx,
		cancel:   cancel,
		inv:      invoker.New(),
	}
}

// Start opens the discovery UDP socket (and joins the multicast group
// when enabled), then spawns the announce, heartbeat, listen, and stale
// sweep loops.
func (s *Service) Start() error {
	addr := &net.UDPAddr{Port: int(s.cfg.DiscoveryPort)}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return types.WrapError(types.KindTransport, "open discovery socket", err)
	}
	s.udpConn = conn

	if s.cfg.EnableMulticast && s.cfg.MulticastAddress != "" {
		if err := s.joinMulticast(); err != nil {
			s.log.Warnf("multicast join failed, continuing broadcast-only: %v", err)
		}
	}

	s.inv.Spawn(s.listenLoop)
	s.inv.Spawn(s.announceLoop)
	s.inv.Spawn(s.heartbeatLoop)
	s.inv.Spawn(s.sweepLoop)
	s.log.Infof("discovery listening on udp4 :%d", s.cfg.DiscoveryPort)
	return nil
}

func (s *Service) joinMulticast() error {
	group := net.ParseIP(s.cfg.MulticastAddress)
	if group == nil {
		return types.NewError(types.KindInvalid, "invalid multicast_address")
	}
	iface, err := defaultMulticastInterface()
	if err != nil {
		return err
	}
	pc := ipv4.NewPacketConn(s.udpConn)
	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
		return types.WrapError(types.KindTransport, "join multicast group", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		s.log.Warnf("set multicast loopback: %v", err)
	}
	s.mcastPC = pc
	s.mcastGroup = &net.UDPAddr{IP: group, Port: int(s.cfg.DiscoveryPort)}
	return nil
}

// defaultMulticastInterface picks the first interface supporting
// multicast, or nil to let the kernel choose.
func defaultMulticastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, types.WrapError(types.KindTransport, "list interfaces", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast != 0 && iface.Flags&net.FlagUp != 0 {
			return &iface, nil
		}
	}
	return nil, nil
}

// Stop cancels the background loops, waits for them to exit, and closes
// the sockets.
func (s *Service) Stop() {
	s.cancel()
	s.inv.Wait()
	if s.mcastPC != nil {
		_ = s.mcastPC.Close()
	}
	if s.udpConn != nil {
		_ = s.udpConn.Close()
	}
}

func (s *Service) listenLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		_ = s.udpConn.SetReadDeadline(time.Now().Add(time.Second))
		n, from, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Warnf("discovery read failed: %v", err)
				continue
			}
		}
		s.handleDatagram(buf[:n], from)
	}
}

func (s *Service) handleDatagram(raw []byte, from *net.UDPAddr) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Debugf("discarding malformed discovery datagram from %s: %v", from, err)
		return
	}
	if msg.NodeID == "" || msg.NodeID == s.cfg.NodeID {
		return
	}

	address := msg.Address
	if address == "" {
		address = from.IP.String()
	}
	_, existed := s.registry.Get(msg.NodeID)
	peer := types.PeerInfo{
		NodeID:    msg.NodeID,
		Address:   address,
		Port:      msg.Port,
		PublicKey: msg.PublicKey,
		LastSeen:  s.clock.Now(),
		Quality:   types.QualityUnknown,
		Capabilities: msg.Capabilities,
	}
	s.registry.Upsert(peer)
	if !existed && s.onNew != nil {
		s.onNew(peer)
	}

	if msg.Type == TypePing {
		s.sendUnicast(TypePong, from)
	}
}

func (s *Service) announceLoop() {
	interval := s.cfg.BroadcastInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s.announce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.announce()
		}
	}
}

func (s *Service) heartbeatLoop() {
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.broadcastMessage(TypeHeartbeat)
		}
	}
}

// sweepLoop evicts peers that have not been seen within PeerTimeout,
// checking at a quarter of the timeout so staleness is caught promptly.
func (s *Service) sweepLoop() {
	timeout := s.cfg.PeerTimeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	checkInterval := timeout / 4
	if checkInterval <= 0 {
		checkInterval = time.Second
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			evicted := s.registry.EvictStale(s.clock.Now(), uint64(timeout.Seconds()))
			for _, id := range evicted {
				s.log.Infof("evicted stale peer %s", id)
			}
		}
	}
}

func (s *Service) announce() {
	s.broadcastMessage(TypeAnnounce)
}

func (s *Service) buildMessage(t MessageType) Message {
	return Message{
		Type:         t,
		NodeID:       s.cfg.NodeID,
		PublicKey:    s.cfg.PublicKey,
		Address:      s.cfg.ListenAddress,
		Port:         s.cfg.ListenPort,
		Timestamp:    s.clock.Now(),
		Capabilities: s.cfg.Capabilities,
	}
}

func (s *Service) broadcastMessage(t MessageType) {
	raw, err := json.Marshal(s.buildMessage(t))
	if err != nil {
		s.log.Errorf("marshal discovery message: %v", err)
		return
	}
	if s.cfg.EnableBroadcast && s.cfg.BroadcastAddress != "" {
		dst := &net.UDPAddr{IP: net.ParseIP(s.cfg.BroadcastAddress), Port: int(s.cfg.DiscoveryPort)}
		if _, err := s.udpConn.WriteToUDP(raw, dst); err != nil {
			s.log.Debugf("broadcast send failed: %v", err)
		}
	}
	s.mu.Lock()
	pc, group := s.mcastPC, s.mcastGroup
	s.mu.Unlock()
	if pc != nil && group != nil {
		if _, err := pc.WriteTo(raw, nil, group); err != nil {
			s.log.Debugf("multicast send failed: %v", err)
		}
	}
}

func (s *Service) sendUnicast(t MessageType, to *net.UDPAddr) {
	raw, err := json.Marshal(s.buildMessage(t))
	if err != nil {
		s.log.Errorf("marshal discovery message: %v", err)
		return
	}
	if _, err := s.udpConn.WriteToUDP(raw, to); err != nil {
		s.log.Debugf("unicast send failed: %v", err)
	}
}

// Ping sends a unicast ping to a specific known address, used to probe
// liveness outside the announce cadence.
func (s *Service) Ping(addr string, port uint16) error {
	udpAddr := &net.UDPAddr{IP: net.ParseIP(addr), Port: int(port)}
	if udpAddr.IP == nil {
		resolved, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(addr, "0"))
		if err != nil {
			return types.WrapError(types.KindTransport, "resolve ping target", err)
		}
		udpAddr = &net.UDPAddr{IP: resolved.IP, Port: int(port)}
	}
	s.sendUnicast(TypePing, udpAddr)
	return nil
}
