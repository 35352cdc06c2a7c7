package socks5

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dabena/brezn/internal/invoker"
	"github.com/dabena/brezn/pkg/brezn/definition"
	"github.com/dabena/brezn/pkg/brezn/types"
)

// Config configures the SOCKS5 client + circuit supervisor (§4.3, §6).
type Config struct {
	ProxyHost               string
	FallbackPorts           []uint16
	ConnectionTimeout       time.Duration
	CircuitTimeout          time.Duration
	MaxConnections          int
	HealthCheckInterval     time.Duration
	CircuitRotationInterval time.Duration
	FreshCircuitCount       int
	SendRetries             int

	// ProbeHost and ProbePort are the destination dialed by the periodic
	// health probe; an empty ProbeHost disables probing.
	ProbeHost string
	ProbePort uint16
}

const maxFailureHistory = 100

// Supervisor opens outbound TCP streams via a local SOCKS5 proxy,
// pools and health-checks circuits, and rotates them on degradation or
// schedule (§4.3).
type Supervisor struct {
	cfg Config
	log definition.Logger

	mu              sync.Mutex
	proxyPort       uint16
	enabled         bool
	circuits        map[string]*Circuit
	failureHistory  []FailureRecord

	pool *pool

	dial func(network, address string, timeout time.Duration) (net.Conn, error)

	ctx    context.Context
	cancel context.CancelFunc
	inv    *invoker.Invoker
}

// New builds a disabled Supervisor; call Enable to probe the proxy and
// start background health/rotation tasks.
func New(cfg Config, log definition.Logger) *Supervisor {
	if cfg.FreshCircuitCount == 0 {
		cfg.FreshCircuitCount = 3
	}
	if cfg.SendRetries == 0 {
		cfg.SendRetries = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:      cfg,
		log:      log,
		circuits: make(map[string]*Circuit),
		pool:     newPool(cfg.MaxConnections),
		dial:     net.DialTimeout,
		ctx:      ctx,
		cancel:   cancel,
		inv:      invoker.New(),
	}
}

// Enable probes the configured fallback ports in order, accepting the
// first that completes the SOCKS5 greeting, then starts the health
// monitor and rotation tasks.
func (s *Supervisor) Enable() error {
	candidates := s.cfg.FallbackPorts
	if len(candidates) == 0 {
		return types.NewError(types.KindInvalid, "no candidate socks5 ports configured")
	}

	var lastErr error
	for _, port := range candidates {
		addr := joinHostPort(s.cfg.ProxyHost, port)
		conn, err := s.dial("tcp", addr, s.cfg.ConnectionTimeout)
		if err != nil {
			lastErr = err
			continue
		}
		err = Handshake(conn)
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}

		s.mu.Lock()
		s.proxyPort = port
		s.enabled = true
		s.mu.Unlock()

		s.log.Infof("socks5 proxy selected on port %d", port)
		s.inv.Spawn(s.healthMonitorLoop)
		s.inv.Spawn(s.rotationLoop)
		return nil
	}
	return types.WrapError(types.KindTransport, "no candidate socks5 proxy port responded", lastErr)
}

// Disable stops background tasks and clears pooled connections.
func (s *Supervisor) Disable() {
	s.cancel()
	s.inv.Wait()
	s.pool.clear()
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
}

// Enabled reports whether the supervisor has successfully probed a
// proxy port.
func (s *Supervisor) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Supervisor) proxyAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return joinHostPort(s.cfg.ProxyHost, s.proxyPort)
}

// pickOrCreateCircuitLocked returns a usable (non-Retired) circuit,
// creating one if none exists.
func (s *Supervisor) pickOrCreateCircuitLocked() *Circuit {
	for _, c := range s.circuits {
		if c.State != CircuitRetired {
			return c
		}
	}
	c := newCircuit()
	s.circuits[c.ID] = c
	return c
}

func (s *Supervisor) circuitHealthy(circuitID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.circuits[circuitID]
	return ok && c.State != CircuitRetired
}

func (s *Supervisor) recordFailure(circuitID, errText string) {
	s.mu.Lock()
	now := time.Now()
	retired := false
	if c, ok := s.circuits[circuitID]; ok {
		c.recordFailure(now)
		retired = c.State == CircuitRetired
	}
	s.failureHistory = append(s.failureHistory, FailureRecord{Timestamp: now, Error: errText, CircuitID: circuitID})
	if len(s.failureHistory) > maxFailureHistory {
		s.failureHistory = s.failureHistory[len(s.failureHistory)-maxFailureHistory:]
	}
	s.mu.Unlock()

	if retired {
		s.pool.evictByCircuit(circuitID)
	}
}

func (s *Supervisor) recordSuccess(circuitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.circuits[circuitID]; ok {
		c.recordSuccess(time.Now())
	}
}

func (s *Supervisor) overallHealth() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.circuits) == 0 {
		return 1.0
	}
	var total float64
	for _, c := range s.circuits {
		total += c.Health
	}
	return total / float64(len(s.circuits))
}

// OverallHealth exposes the average circuit health for monitoring.
func (s *Supervisor) OverallHealth() float64 {
	return s.overallHealth()
}

// CircuitCount reports how many circuits are currently tracked.
func (s *Supervisor) CircuitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.circuits)
}

// Dial opens a tunnel to (host, port) through the proxy, reusing a
// pooled connection when a healthy one exists. It retries up to
// SendRetries times, triggering rotation before the next attempt when
// overall health has fallen below the degraded threshold, and backs
// off with a linear step between attempts (§4.3 send path).
func (s *Supervisor) Dial(host string, port uint16) (net.Conn, error) {
	if !s.Enabled() {
		return nil, types.NewError(types.KindTransport, "socks5 supervisor not enabled")
	}
	destination := joinHostPort(host, port)

	if entry, ok := s.pool.get(destination, s.circuitHealthy); ok {
		entry.LastUsed = time.Now()
		return entry.Conn, nil
	}

	release := s.pool.acquire()
	defer release()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.SendRetries; attempt++ {
		if s.overallHealth() < degradedHealthThreshold {
			s.Rotate()
		}

		conn, circuitID, err := s.createTunnel(host, port)
		if err == nil {
			s.pool.put(destination, &PooledConnection{Conn: conn, CircuitID: circuitID, LastUsed: time.Now()})
			return conn, nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return nil, types.WrapError(types.KindTransport, fmt.Sprintf("dial %s failed after %d attempts", destination, s.cfg.SendRetries), lastErr)
}

func (s *Supervisor) createTunnel(host string, port uint16) (net.Conn, string, error) {
	s.mu.Lock()
	circuit := s.pickOrCreateCircuitLocked()
	circuitID := circuit.ID
	s.mu.Unlock()

	conn, err := s.dial("tcp", s.proxyAddr(), s.cfg.ConnectionTimeout)
	if err != nil {
		s.recordFailure(circuitID, err.Error())
		return nil, "", types.WrapError(types.KindTransport, "dial socks5 proxy", err)
	}
	if err := Handshake(conn); err != nil {
		_ = conn.Close()
		s.recordFailure(circuitID, err.Error())
		return nil, "", err
	}
	if err := Connect(conn, host, port); err != nil {
		_ = conn.Close()
		s.recordFailure(circuitID, err.Error())
		return nil, "", err
	}
	s.recordSuccess(circuitID)
	return conn, circuitID, nil
}

// Rotate clears the circuit map and creates FreshCircuitCount new
// circuits with a brief delay between creations (§4.3 rotation).
func (s *Supervisor) Rotate() {
	s.mu.Lock()
	for id := range s.circuits {
		delete(s.circuits, id)
	}
	s.mu.Unlock()
	s.pool.clear()

	for i := 0; i < s.cfg.FreshCircuitCount; i++ {
		s.mu.Lock()
		c := newCircuit()
		s.circuits[c.ID] = c
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	s.log.Infof("rotated circuits, %d fresh circuits created", s.cfg.FreshCircuitCount)
}

func (s *Supervisor) healthMonitorLoop() {
	interval := s.cfg.HealthCheckInterval
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
			s.probeHealth()
		}
	}
}

func (s *Supervisor) probeHealth() {
	if s.cfg.ProbeHost == "" {
		return
	}
	conn, _, err := s.createTunnel(s.cfg.ProbeHost, s.cfg.ProbePort)
	if err != nil {
		s.log.Warnf("circuit health probe failed: %v", err)
		return
	}
	_ = conn.Close()
}

func (s *Supervisor) rotationLoop() {
	interval := s.cfg.CircuitRotationInterval
	if interval <= 0 {
		interval = 300 * time.Second
	}
	// Check for retired/expired circuits more frequently than the full
	// rotation interval so a degraded circuit doesn't linger in the pool.
	checkInterval := interval / 4
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
			if s.dueForRotation(interval) {
				s.Rotate()
			}
		}
	}
}

// dueForRotation reports whether any circuit has exceeded age > interval
// or is already Retired (§4.3 rotation triggers).
func (s *Supervisor) dueForRotation(interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, c := range s.circuits {
		if c.State == CircuitRetired || c.expired(now, interval) {
			return true
		}
	}
	return false
}

// FailureHistory returns a snapshot of the bounded failure ring.
func (s *Supervisor) FailureHistory() []FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FailureRecord, len(s.failureHistory))
	copy(out, s.failureHistory)
	return out
}
